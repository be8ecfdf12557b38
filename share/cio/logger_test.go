package cio

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(prefix string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	lr := logrus.New()
	lr.SetOutput(buf)
	lr.SetLevel(logrus.DebugLevel)
	return NewLoggerWith(prefix, lr), buf
}

func TestForkAccumulatesPrefixes(t *testing.T) {
	l, buf := newBufferedLogger("listener")
	conn := l.Fork("conn#%d", 3)
	assert.Equal(t, "listener: conn#3", conn.Prefix())

	conn.Infof("open")
	assert.Contains(t, buf.String(), "listener: conn#3: open")
}

func TestErrorfLogsAndReturns(t *testing.T) {
	l, buf := newBufferedLogger("svc")
	err := l.Errorf("port %d out of range", 70000)
	require.Error(t, err)
	assert.Equal(t, "port 70000 out of range", err.Error())
	assert.Contains(t, buf.String(), "svc: port 70000 out of range")
}

func TestDebugGating(t *testing.T) {
	buf := &bytes.Buffer{}
	lr := logrus.New()
	lr.SetOutput(buf)
	l := NewLoggerWith("x", lr)

	l.SetDebug(false)
	l.Debugf("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	l.SetDebug(true)
	l.Debugf("shown")
	assert.Contains(t, buf.String(), "shown")
}
