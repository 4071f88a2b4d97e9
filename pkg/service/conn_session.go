package service

import (
	"context"
	"sync"

	"github.com/ucm-project/ucm-go/pkg/manager"
	"github.com/ucm-project/ucm-go/pkg/transport"
	"github.com/ucm-project/ucm-go/pkg/version"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// connSession ties one transport connection to one manager session.
// Commands run on their own worker goroutines so a blocked collection
// (GET_EVENT against an empty queue) never stalls the other commands
// arriving on the same connection.
type connSession struct {
	svc  *Service
	conn *transport.ServerConn
	sess *manager.Session

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newConnSession(svc *Service, conn *transport.ServerConn, sess *manager.Session) *connSession {
	ctx, cancel := context.WithCancel(svc.ctx)
	return &connSession{
		svc:    svc,
		conn:   conn,
		sess:   sess,
		ctx:    ctx,
		cancel: cancel,
	}
}

// start pushes the hello frame and spins up the ready pusher.
func (c *connSession) start() {
	hello, err := wire.EncodeHello(&wire.Hello{
		SessionToken:  c.sess.Token(),
		ABIVersion:    version.ABIVersion,
		ServerVersion: version.Current,
	})
	if err == nil {
		if err := c.conn.Send(hello); err != nil {
			c.svc.logger.Debug("hello send failed", "session", c.sess.Token(), "error", err)
		}
	}

	c.wg.Add(1)
	go c.readyPusher()
}

// handleFrame accepts one command frame. It runs on the connection's
// read goroutine; the command itself runs on a fresh worker. Frames
// that do not carry a decodable command envelope are dropped, since
// there is no message id to correlate an error reply with.
func (c *connSession) handleFrame(data []byte) {
	kind, err := wire.PeekMessageKind(data)
	if err != nil {
		c.svc.logger.Debug("undecodable frame", "session", c.sess.Token(), "error", err)
		return
	}
	if kind != wire.KindCommand {
		c.svc.logger.Debug("unexpected frame kind", "session", c.sess.Token(), "kind", kind.String())
		return
	}

	cmd, err := wire.DecodeCommand(data)
	if err != nil {
		c.svc.logger.Debug("bad command envelope", "session", c.sess.Token(), "error", err)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatch(cmd)
	}()
}

// dispatch runs one command against the session and sends the
// correlated reply. The reply payload, when the operation produces
// one, is captured from the manager's delivery callback and travels
// in the same reply frame as the status.
func (c *connSession) dispatch(cmd *wire.Command) {
	var payload []byte
	consumed, err := c.sess.Submit(c.ctx, cmd.Data, func(p []byte) error {
		payload = p
		return nil
	})

	buf, encErr := wire.EncodeReply(&wire.Reply{
		MessageID: cmd.MessageID,
		Status:    manager.StatusFor(err),
		Consumed:  uint32(consumed),
		Payload:   payload,
	})
	if encErr != nil {
		c.svc.logger.Error("reply encode failed", "session", c.sess.Token(), "error", encErr)
		return
	}
	if sendErr := c.conn.Send(buf); sendErr != nil {
		c.svc.logger.Debug("reply send failed", "session", c.sess.Token(), "error", sendErr)
	}
}

// readyPusher forwards the session's empty-to-non-empty queue
// transitions as Ready frames. The client surfaces them as a
// readiness channel.
func (c *connSession) readyPusher() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.sess.Done():
			return
		case <-c.sess.Notices():
			frame, err := wire.EncodeReady()
			if err != nil {
				return
			}
			if err := c.conn.Send(frame); err != nil {
				return
			}
		}
	}
}

// close cancels in-flight commands, waits for the workers to drain,
// then closes the manager session. Session Close never overlaps a
// Submit.
func (c *connSession) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.sess.Close()
	})
}
