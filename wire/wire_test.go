package wire_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shillingchain/node/wire"
)

func pipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestSendReceiveRoundTrip(t *testing.T) {
	client, server := pipe(t)
	limits := wire.Limits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}

	done := make(chan wire.Package, 1)
	errs := make(chan error, 1)
	go func() {
		p, err := wire.Receive(server, limits, nil)
		done <- p
		errs <- err
	}()

	sent := wire.NewPackage(wire.ActionGetBalance, "some-address")
	require.NoError(t, wire.Send(client, sent, limits))

	received := <-done
	require.NoError(t, <-errs)
	require.Equal(t, sent, received)
}

func TestReceiveRejectsUnacceptedAction(t *testing.T) {
	client, server := pipe(t)
	limits := wire.Limits{MaxSize: 1 << 20, ReceiveTimeoutSecs: 5}

	errs := make(chan error, 1)
	go func() {
		_, err := wire.Receive(server, limits, map[wire.Action]bool{
			wire.ActionGetBalanceSuccess: true,
		})
		errs <- err
	}()

	require.NoError(t, wire.Send(client, wire.NewPackage(wire.ActionGetBalance, "x"), limits))

	err := <-errs
	require.Error(t, err)
	var wireErr *wire.Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, wire.PhaseInvalidAction, wireErr.Phase)
}

func TestSendRejectsOversizedPackage(t *testing.T) {
	client, _ := pipe(t)
	limits := wire.Limits{MaxSize: 4, ReceiveTimeoutSecs: 5}

	err := wire.Send(client, wire.NewPackage(wire.ActionGetBalance, "this payload is definitely too big"), limits)
	require.Error(t, err)
	var wireErr *wire.Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, wire.PhaseTooBig, wireErr.Phase)
}
