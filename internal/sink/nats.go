package sink

import (
	"log/slog"
	"net"
	"time"

	"github.com/nats-io/nats.go"

	"gps-relay/internal/logging"
)

// NATS publishes documents as core NATS messages.
type NATS struct {
	nc *nats.Conn
}

func DialNATS(server string, log *slog.Logger) (*NATS, error) {
	if log == nil {
		log = logging.Discard()
	}
	nc, err := nats.Connect(server,
		nats.Name("gps-relay"),
		nats.Timeout(10*time.Second),
		nats.PingInterval(2*time.Minute),
		nats.MaxPingsOutstanding(5),
		nats.SetCustomDialer(&net.Dialer{KeepAlive: -1}),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			log.Warn("nats error", "subject", subject, "error", err.Error())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "server", server, "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "server", nc.ConnectedUrl())
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info("nats connected", "server", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATS{nc: nc}, nil
}

// Publish buffers the message in the client while reconnecting.
func (n *NATS) Publish(subject string, payload []byte) error {
	return n.nc.Publish(subject, payload)
}

func (n *NATS) Close() error {
	if err := n.nc.Flush(); err != nil && n.nc.IsConnected() {
		n.nc.Close()
		return err
	}
	n.nc.Close()
	return nil
}
