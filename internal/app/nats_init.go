package app

import (
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// initNATS подключается к NATS если url не пустой.
// Возвращает nil, nil при пустом url.
func initNATS(url string, logger *log.Entry) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url,
		nats.Name("orders-ms"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.WithField("url", conn.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.WithField("url", url).Info("nats connection established")
	return conn, nil
}

// closeNATS дренирует и закрывает подключение если оно не nil.
func closeNATS(conn *nats.Conn, logger *log.Entry) {
	if conn == nil {
		return
	}

	if err := conn.Drain(); err != nil {
		logger.WithError(err).Warn("failed to drain nats connection")
		conn.Close()
		return
	}
	logger.Info("nats connection closed")
}
