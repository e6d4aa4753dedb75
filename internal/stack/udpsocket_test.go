package stack

import (
	"testing"

	"github.com/soypat/netstack"
	"github.com/stretchr/testify/require"
)

func TestUDPSocketDeliverAndReceive(t *testing.T) {
	sock := newUDPSocket(SocketHandle{LocalPort: 5000})
	peer := netstack.AddrPort{IP: mustIP(t, "1.2.3.4"), Port: 9999}

	require.True(t, sock.Deliver(UDPMessage{Addr: peer, Payload: []byte("hello")}))
	require.Equal(t, 1, sock.RxLen())

	msg, ok := sock.Receive()
	require.True(t, ok)
	require.Equal(t, peer, msg.Addr)
	require.Equal(t, []byte("hello"), msg.Payload)
	require.Equal(t, 0, sock.RxLen())
}

func TestUDPSocketQueueSendFIFOOrder(t *testing.T) {
	sock := newUDPSocket(SocketHandle{LocalPort: 5000})
	peer := netstack.AddrPort{IP: mustIP(t, "1.2.3.4"), Port: 9999}

	sock.QueueSend(UDPMessage{Addr: peer, Payload: []byte("a")})
	sock.QueueSend(UDPMessage{Addr: peer, Payload: []byte("b")})

	m1, ok := sock.NextSend()
	require.True(t, ok)
	require.Equal(t, []byte("a"), m1.Payload)

	m2, ok := sock.NextSend()
	require.True(t, ok)
	require.Equal(t, []byte("b"), m2.Payload)

	_, ok = sock.NextSend()
	require.False(t, ok)
}

func TestMessageFIFOTailDrop(t *testing.T) {
	f := newMessageFIFO(2)
	require.True(t, f.push(UDPMessage{}))
	require.True(t, f.push(UDPMessage{}))
	require.False(t, f.push(UDPMessage{}), "third push should be dropped at capacity 2")
	require.Equal(t, 2, f.len())
}
