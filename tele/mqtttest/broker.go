// Package mqtttest is a minimal in-process MQTT broker for transport
// integration tests: QoS 0 only, accepts every CONNECT, routes PUBLISH
// to live subscriptions. Not a general-purpose broker.
package mqtttest

import (
	"net"
	"sync"

	"github.com/256dpi/gomqtt/packet"
	"github.com/256dpi/gomqtt/topic"
	"github.com/256dpi/gomqtt/transport"
	"github.com/temoto/alive/v2"

	"furnace-agent/log2"
)

type subscription struct {
	conn   transport.Conn
	filter string
}

type Broker struct {
	Log *log2.Log

	// OnPublish sees every inbound PUBLISH before routing. May call
	// Publish to inject a response (pong echo).
	OnPublish func(msg *packet.Message)

	alive  *alive.Alive
	server *transport.NetServer

	mu       sync.Mutex
	subs     *topic.Tree
	conns    map[transport.Conn]struct{}
	received []*packet.Message
}

func NewBroker(log *log2.Log) (*Broker, error) {
	listen, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	b := &Broker{
		Log:    log,
		alive:  alive.NewAlive(),
		server: transport.NewNetServer(listen),
		subs:   topic.NewStandardTree(),
		conns:  make(map[transport.Conn]struct{}),
	}
	go b.acceptLoop()
	return b, nil
}

// URL is the broker address in the form MQTT clients dial.
func (b *Broker) URL() string { return "tcp://" + b.server.Addr().String() }

func (b *Broker) Close() {
	b.alive.Stop()
	_ = b.server.Close()
	b.mu.Lock()
	for conn := range b.conns {
		_ = conn.Close()
	}
	b.mu.Unlock()
	b.alive.Wait()
}

// Received returns copies of inbound PUBLISH payloads on topic, in order.
func (b *Broker) Received(topicName string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, 0, len(b.received))
	for _, msg := range b.received {
		if msg.Topic == topicName {
			out = append(out, append([]byte(nil), msg.Payload...))
		}
	}
	return out
}

// Publish routes a broker-originated message to matching subscribers.
func (b *Broker) Publish(msg *packet.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.route(msg)
}

// route delivers to subscribers, callers hold b.mu.
func (b *Broker) route(msg *packet.Message) {
	seen := make(map[transport.Conn]struct{})
	for _, x := range b.subs.Match(msg.Topic) {
		sub := x.(*subscription)
		if _, ok := seen[sub.conn]; ok {
			continue
		}
		seen[sub.conn] = struct{}{}
		pub := packet.NewPublish()
		pub.Message = *msg.Copy()
		pub.Message.QOS = 0
		if err := sub.conn.Send(pub, false); err != nil {
			b.Log.Debugf("mqtttest: route send err=%v", err)
		}
	}
}

func (b *Broker) acceptLoop() {
	if !b.alive.Add(1) {
		return
	}
	defer b.alive.Done()
	for {
		conn, err := b.server.Accept()
		if err != nil {
			return
		}
		if !b.alive.Add(1) {
			_ = conn.Close()
			return
		}
		go b.serve(conn)
	}
}

func (b *Broker) serve(conn transport.Conn) {
	defer b.alive.Done()
	defer b.dropConn(conn)

	pkt, err := conn.Receive()
	if err != nil {
		return
	}
	pktConnect, ok := pkt.(*packet.Connect)
	if !ok {
		b.Log.Errorf("mqtttest: first packet %T, want CONNECT", pkt)
		return
	}
	b.Log.Debugf("mqtttest: CONNECT client=%s", pktConnect.ClientID)
	connack := packet.NewConnack()
	connack.ReturnCode = packet.ConnectionAccepted
	if err = conn.Send(connack, false); err != nil {
		return
	}
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	for {
		pkt, err = conn.Receive()
		if err != nil {
			return
		}
		switch p := pkt.(type) {
		case *packet.Subscribe:
			suback := packet.NewSuback()
			suback.ID = p.ID
			b.mu.Lock()
			for _, s := range p.Subscriptions {
				b.subs.Add(s.Topic, &subscription{conn: conn, filter: s.Topic})
				suback.ReturnCodes = append(suback.ReturnCodes, 0)
			}
			b.mu.Unlock()
			if err = conn.Send(suback, false); err != nil {
				return
			}

		case *packet.Unsubscribe:
			unsuback := packet.NewUnsuback()
			unsuback.ID = p.ID
			b.mu.Lock()
			b.dropSubsLocked(conn, p.Topics)
			b.mu.Unlock()
			if err = conn.Send(unsuback, false); err != nil {
				return
			}

		case *packet.Publish:
			msg := p.Message.Copy()
			b.mu.Lock()
			b.received = append(b.received, msg)
			b.mu.Unlock()
			if b.OnPublish != nil {
				b.OnPublish(msg)
			}
			b.mu.Lock()
			b.route(msg)
			b.mu.Unlock()

		case *packet.Pingreq:
			if err = conn.Send(packet.NewPingresp(), false); err != nil {
				return
			}

		case *packet.Disconnect:
			return

		default:
			b.Log.Debugf("mqtttest: ignoring %T", pkt)
		}
	}
}

func (b *Broker) dropConn(conn transport.Conn) {
	_ = conn.Close()
	b.mu.Lock()
	delete(b.conns, conn)
	b.dropSubsLocked(conn, nil)
	b.mu.Unlock()
}

// dropSubsLocked removes conn's subscriptions; nil topics means all.
func (b *Broker) dropSubsLocked(conn transport.Conn, topics []string) {
	for _, x := range b.subs.All() {
		sub := x.(*subscription)
		if sub.conn != conn {
			continue
		}
		if topics != nil {
			keep := true
			for _, t := range topics {
				if t == sub.filter {
					keep = false
					break
				}
			}
			if keep {
				continue
			}
		}
		b.subs.Remove(sub.filter, x)
	}
}
