package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client drives a single paho connection on behalf of the session manager.
//
// It exposes the small, poll-driven surface the session manager needs
// (Begin, Connect, Disconnect, Subscribe, Publish, Loop, Connected,
// ReturnCode, LastError, OnMessage) and hides paho's goroutines behind it.
//
// Thread Safety:
//   - Every exported method must be called from the single control goroutine.
//   - paho callbacks only enqueue onto buffered channels; Loop drains them.
//   - Library auto-reconnect is off. A fresh paho client is built per Connect.
type Client struct {
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
	client    pahomqtt.Client

	host      string
	port      int
	keepAlive time.Duration
	opts      Options

	// generation identifies the current paho client; events tagged with an
	// older generation belong to a previous connection and are ignored.
	generation uint64
	clientID   string

	returnCode ReturnCode
	lastError  ErrorCode

	handler MessageHandler
	inbound chan inboundMessage
	lost    chan lostEvent
	pending []pendingSubscription

	dropped atomic.Uint64

	logger Logger
}

// Options tunes a Client. Zero fields take defaults.
type Options struct {
	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout time.Duration

	// BufferSize is the largest payload accepted by Publish.
	BufferSize int

	// InboundQueue is the capacity of the queue between paho and Loop.
	InboundQueue int

	// MaxDispatch bounds messages handed to the handler per Loop call.
	MaxDispatch int

	// StatusTopic, when set, receives a retained online message after every
	// connect, a graceful offline message on Disconnect, and is used as the
	// Last Will topic.
	StatusTopic string
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the control goroutine, from Loop. They must not block.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The message payload; owned by the handler
type MessageHandler func(topic string, payload []byte)

type inboundMessage struct {
	generation uint64
	topic      string
	payload    []byte
}

type lostEvent struct {
	generation uint64
	err        error
}

// returnCoder is implemented by paho's ConnectToken.
type returnCoder interface {
	ReturnCode() byte
}

// New creates an unbound Client. Begin must be called before Connect.
func New(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.InboundQueue <= 0 {
		opts.InboundQueue = defaultInboundQueue
	}
	if opts.MaxDispatch <= 0 {
		opts.MaxDispatch = defaultMaxDispatch
	}

	return &Client{
		newClient: pahomqtt.NewClient,
		keepAlive: defaultKeepAlive,
		opts:      opts,
		inbound:   make(chan inboundMessage, opts.InboundQueue),
		lost:      make(chan lostEvent, 1),
	}
}

// SetLogger sets a logger for diagnostics.
// If not set, failures are only visible through LastError.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Begin binds the broker endpoint used by subsequent Connect calls.
func (c *Client) Begin(host string, port int) {
	c.host = host
	c.port = port
}

// SetKeepAlive sets the keepalive interval for subsequent connects.
func (c *Client) SetKeepAlive(d time.Duration) {
	c.keepAlive = d
}

// OnMessage registers the handler invoked from Loop for incoming messages.
func (c *Client) OnMessage(handler MessageHandler) {
	c.handler = handler
}

// Connect performs one connect attempt bounded by Options.ConnectTimeout.
//
// On success ReturnCode is ReturnAccepted and LastError is ErrorSuccess.
// On failure the two codes classify the cause; the caller decides when to
// try again.
//
// Returns:
//   - bool: true if the session is connected when Connect returns
func (c *Client) Connect(clientID, username, password string) bool {
	if c.Connected() {
		return true
	}
	if c.host == "" {
		c.lastError = ErrorNetworkFailedConnect
		c.logWarn("MQTT connect skipped", "error", ErrEndpointNotBound)
		return false
	}

	c.discardLost()
	c.generation++
	generation := c.generation
	c.clientID = clientID

	opts := buildClientOptions(c.host, c.port, clientID, username, password, c.keepAlive, c.opts.ConnectTimeout)
	if c.opts.StatusTopic != "" {
		configureLWT(opts, c.opts.StatusTopic, clientID)
	}
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.enqueue(generation, msg)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		select {
		case c.lost <- lostEvent{generation: generation, err: err}:
		default:
		}
	})

	client := c.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(c.opts.ConnectTimeout) {
		client.Disconnect(0)
		c.returnCode = ReturnServerUnavailable
		c.lastError = ErrorNetworkTimeout
		c.logWarn("MQTT connect timed out", "timeout", c.opts.ConnectTimeout)
		return false
	}
	if err := token.Error(); err != nil {
		c.classifyConnectError(token, err)
		c.logWarn("MQTT connect failed",
			"error", fmt.Errorf("%w: %w", ErrConnectionFailed, err),
			"return_code", c.returnCode.String(),
			"last_error", c.lastError.String(),
		)
		return false
	}

	c.client = client
	c.pending = c.pending[:0]
	c.returnCode = ReturnAccepted
	c.lastError = ErrorSuccess

	if c.opts.StatusTopic != "" {
		client.Publish(c.opts.StatusTopic, 1, true, buildStatusPayload(clientID, "online", ""))
	}

	return true
}

// classifyConnectError maps a failed connect token onto the diagnostic codes.
func (c *Client) classifyConnectError(token pahomqtt.Token, err error) {
	if rc, ok := token.(returnCoder); ok {
		code := ReturnCode(rc.ReturnCode())
		if code > ReturnAccepted && code <= ReturnNotAuthorized {
			c.returnCode = code
			c.lastError = ErrorConnectionDenied
			return
		}
	}

	c.returnCode = ReturnServerUnavailable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		c.lastError = ErrorNetworkTimeout
		return
	}
	c.lastError = ErrorNetworkFailedConnect
}

// Disconnect closes the current connection.
//
// A retained offline status is published first when a status topic is
// configured.
//
// Returns:
//   - bool: true if a live connection was closed
func (c *Client) Disconnect() bool {
	if c.client == nil {
		return false
	}

	wasConnected := c.Connected()
	if wasConnected && c.opts.StatusTopic != "" {
		token := c.client.Publish(c.opts.StatusTopic, 1, true,
			buildStatusPayload(c.clientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultStatusTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.client = nil
	c.pending = c.pending[:0]

	return wasConnected
}

// Connected reports whether the transport is currently open.
func (c *Client) Connected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// ReturnCode returns the CONNACK code of the most recent connect attempt.
func (c *Client) ReturnCode() ReturnCode {
	return c.returnCode
}

// LastError returns the most recent client error code.
func (c *Client) LastError() ErrorCode {
	return c.lastError
}

// Dropped returns the number of inbound messages discarded because the
// inbound queue was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Loop services one bounded unit of protocol work: it records connection
// loss, settles completed subscriptions and dispatches at most
// Options.MaxDispatch queued messages to the handler.
//
// Keepalive pings run on paho's own goroutines.
//
// Returns:
//   - bool: true if the connection is still open
func (c *Client) Loop() bool {
	reported := c.drainLost()

	if !c.Connected() {
		// paho may close the transport before its loss callback runs.
		if !reported && c.client != nil && c.lastError == ErrorSuccess {
			c.lastError = ErrorNetworkFailedRead
		}
		return false
	}

	c.settleSubscriptions()
	c.dispatch()

	return true
}

// drainLost records connection loss reported by paho for the current
// generation. It reports whether such a loss was recorded.
func (c *Client) drainLost() bool {
	select {
	case ev := <-c.lost:
		if ev.generation != c.generation {
			return false
		}
		c.lastError = ErrorNetworkFailedRead
		if ev.err != nil && strings.Contains(ev.err.Error(), "pingresp") {
			c.lastError = ErrorPongTimeout
		}
		c.logWarn("MQTT connection lost", "error", ev.err, "last_error", c.lastError.String())
		return true
	default:
		return false
	}
}

// discardLost empties the loss slot so a late report from a previous
// connection cannot block the next one's.
func (c *Client) discardLost() {
	select {
	case <-c.lost:
	default:
	}
}

// dispatch hands queued messages to the handler.
func (c *Client) dispatch() {
	for i := 0; i < c.opts.MaxDispatch; i++ {
		select {
		case msg := <-c.inbound:
			if msg.generation != c.generation || c.handler == nil {
				continue
			}
			c.invokeHandler(msg)
		default:
			return
		}
	}
}

// invokeHandler calls the handler with panic recovery.
func (c *Client) invokeHandler(msg inboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			if c.logger != nil {
				c.logger.Error("MQTT handler panic recovered",
					"topic", msg.topic,
					"panic", r,
				)
			}
		}
	}()

	c.handler(msg.topic, msg.payload)
}

// enqueue is called on paho's goroutine. Payloads are copied because paho
// may reuse the underlying buffer.
func (c *Client) enqueue(generation uint64, msg pahomqtt.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	select {
	case c.inbound <- inboundMessage{generation: generation, topic: msg.Topic(), payload: payload}:
	default:
		c.dropped.Add(1)
	}
}

// Close gracefully disconnects from the MQTT broker.
//
// Returns:
//   - error: always nil; closing an unconnected client is not an error
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.Connected() {
		return ErrNotConnected
	}

	return nil
}

func (c *Client) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
