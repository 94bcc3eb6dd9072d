package net

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
)

const (
	// maxLineSize bounds a single message. A gossip body after a long
	// partition can carry many values.
	maxLineSize = 16 << 20
)

// StdioTransport exchanges line-delimited JSON messages over a reader and a
// writer, stdin and stdout in production. Every other node and client is
// reached through the same pair: the harness on the other end routes messages
// by their dest field.
//
// The local address is the node id, learned from the init message, or from
// the dest of the first message when init carries no id.
type StdioTransport struct {
	in  io.Reader
	out io.Writer

	outLock sync.Mutex

	addrLock  sync.RWMutex
	localAddr string

	consumerCh chan RPC
	timeout    time.Duration
	msgID      int64

	logger *logrus.Entry

	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewStdioTransport creates a transport reading from in and writing to out.
// timeout bounds how long a request waits for the node's answer.
func NewStdioTransport(in io.Reader, out io.Writer, timeout time.Duration, logger *logrus.Entry) *StdioTransport {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &StdioTransport{
		in:         in,
		out:        out,
		consumerCh: make(chan RPC, 128),
		timeout:    timeout,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Consumer implements the Transport interface.
func (s *StdioTransport) Consumer() <-chan RPC {
	return s.consumerCh
}

// LocalAddr implements the Transport interface.
func (s *StdioTransport) LocalAddr() string {
	s.addrLock.RLock()
	defer s.addrLock.RUnlock()
	return s.localAddr
}

// IsShutdown is used to check if the transport is shutdown.
func (s *StdioTransport) IsShutdown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// Send implements the Transport interface.
func (s *StdioTransport) Send(target string, body *Body) error {
	b := *body
	b.MsgID = int(atomic.AddInt64(&s.msgID, 1))

	return s.write(&Message{
		Src:  s.LocalAddr(),
		Dest: target,
		Body: b,
	})
}

// Listen reads messages until the input is exhausted or the transport is
// closed. Malformed lines are logged and skipped.
func (s *StdioTransport) Listen() {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := s.handleLine(line); err != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil && !s.IsShutdown() {
		s.logger.WithError(err).Error("Reading input")
	}

	s.logger.Debug("Input closed")
}

// handleLine decodes and dispatches one message. It only fails when the
// transport is shut down.
func (s *StdioTransport) handleLine(line []byte) error {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		s.logger.WithError(err).WithField("line", string(line)).Warn("Malformed message")
		s.rejectMalformed(line, err)
		return nil
	}

	s.learnAddr(&msg)

	if msg.Body.IsReply() {
		return s.dispatch(RPC{Src: msg.Src, Body: &msg.Body})
	}

	respCh := make(chan RPCResponse, 1)
	if err := s.dispatch(RPC{Src: msg.Src, Body: &msg.Body, RespChan: respCh}); err != nil {
		return err
	}

	go s.awaitReply(msg.Src, &msg.Body, respCh)

	return nil
}

func (s *StdioTransport) dispatch(rpc RPC) error {
	select {
	case s.consumerCh <- rpc:
		return nil
	case <-s.shutdownCh:
		return ErrTransportShutdown
	}
}

// awaitReply writes the node's answer to req back to src.
func (s *StdioTransport) awaitReply(src string, req *Body, respCh <-chan RPCResponse) {
	var reply *Body

	select {
	case resp := <-respCh:
		reply = replyTo(req, resp)
	case <-time.After(s.timeout):
		s.logger.WithFields(logrus.Fields{
			"src":    src,
			"type":   req.Type,
			"msg_id": req.MsgID,
		}).Warn("Request timed out")
		reply = timeoutBody(req)
	case <-s.shutdownCh:
		return
	}

	if reply == nil {
		return
	}

	if err := s.Send(src, reply); err != nil {
		s.logger.WithError(err).Debug("Writing reply")
	}
}

// rejectMalformed answers a line that could not be decoded, when enough of
// it survives to know who sent it and which request it was.
func (s *StdioTransport) rejectMalformed(line []byte, cause error) {
	var loose struct {
		Src  string `json:"src"`
		Body struct {
			MsgID     int `json:"msg_id"`
			InReplyTo int `json:"in_reply_to"`
		} `json:"body"`
	}
	// partial results are what we are after
	_ = json.Unmarshal(line, &loose)

	if loose.Src == "" || loose.Body.MsgID == 0 || loose.Body.InReplyTo != 0 {
		return
	}

	body := &Body{
		Type:      TypeError,
		InReplyTo: loose.Body.MsgID,
		Code:      common.MalformedRequest,
		Text:      fmt.Sprintf("malformed request: %v", cause),
	}
	if err := s.Send(loose.Src, body); err != nil {
		s.logger.WithError(err).Debug("Writing error reply")
	}
}

func (s *StdioTransport) learnAddr(msg *Message) {
	s.addrLock.Lock()
	defer s.addrLock.Unlock()

	if msg.Body.Type == TypeInit && msg.Body.NodeID != "" {
		s.localAddr = msg.Body.NodeID
		return
	}
	if s.localAddr == "" {
		s.localAddr = msg.Dest
	}
}

func (s *StdioTransport) write(msg *Message) error {
	if s.IsShutdown() {
		return ErrTransportShutdown
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.outLock.Lock()
	defer s.outLock.Unlock()

	_, err = s.out.Write(data)
	return err
}

// Close stops dispatching messages. If the input is closable, it is closed
// too so that Listen returns.
func (s *StdioTransport) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.shutdownCh)
		if c, ok := s.in.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
