package main

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/specialistvlad/liveresolver/internal/cli"
	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestRun_Help(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(strings.NewReader(""), out, &bytes.Buffer{}, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error for help")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Equal(t, 2, cli.ExitCode(err))
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_StdioWorker(t *testing.T) {
	t.Parallel()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	logs := &testutil.SafeBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- run(inR, outW, logs, []string{"worker", "--log-level", "debug"})
		outW.Close()
	}()

	events := bufio.NewScanner(outR)
	next := func() protocol.Event {
		t.Helper()
		require.True(t, events.Scan(), "expected another event")
		ev, err := protocol.DecodeEvent(events.Bytes())
		require.NoError(t, err)
		return ev
	}

	require.Equal(t, protocol.TypeReady, next().Type)

	_, err := io.WriteString(inW, `{"type":"create-resolver","commandId":"c1","resolverId":"r1","resolverType":"sum","nodes":{"a":1}}`+"\n")
	require.NoError(t, err)

	outputs := 0
	for {
		ev := next()
		if ev.Type == protocol.TypeResolverReady {
			require.Equal(t, "c1", ev.CommandID)
			break
		}
		require.Equal(t, protocol.TypeOutputs, ev.Type)
		outputs += len(ev.Items)
	}
	require.Equal(t, 1, outputs)

	// Closing stdin is transport loss: the worker disposes r1 and exits.
	require.NoError(t, inW.Close())
	go func() { _, _ = io.Copy(io.Discard, outR) }()
	require.NoError(t, <-done)
	require.Contains(t, logs.String(), "Starting worker.")
}
