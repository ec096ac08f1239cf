// Package whatsapp wraps the Whatsmeow client for WhatsApp integration in Anfitrion.
//
// It provides methods for sending text and image messages and handling
// WhatsApp events, including the QR code pairing flow on first login.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "github.com/lib/pq"           // postgres driver for whatsmeow sqlstore
	_ "github.com/mattn/go-sqlite3" // sqlite driver for whatsmeow sqlstore
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/BrasasLabs/Anfitrion/internal/models"
)

// Constants for WhatsApp client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/anfitrion/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
	// sentIDCapacity bounds the ring of remembered outbound message IDs used
	// to tell the bot's own sends apart from staff replies.
	sentIDCapacity = 512
)

// Sender is an interface for sending WhatsApp messages (for production and testing).
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
	SendImage(ctx context.Context, to string, image []byte, caption string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDriver    string // whatsmeow database driver override
	DBDSN       string // whatsmeow database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDriver sets the whatsmeow database driver explicitly.
func WithDBDriver(driver string) Option {
	return func(o *Opts) {
		o.DBDriver = driver
	}
}

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput instructs the WhatsApp client to write the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode instructs the WhatsApp client to use numeric login code instead of QR code.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// DetectDSNType reports "postgres" for PostgreSQL-looking connection strings
// and "sqlite" otherwise (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Client wraps the Whatsmeow client for modular use.
type Client struct {
	waClient *whatsmeow.Client

	// sentIDs remembers recent outbound message IDs so self-originated
	// events produced by our own sends are not reported as staff replies.
	mu        sync.Mutex
	sentIDs   map[string]struct{}
	sentOrder []string
}

// NewClient creates a new WhatsApp client, applying any provided options.
// On first run it drives the QR (or numeric code) pairing flow before
// returning; afterwards it reconnects using the stored device session.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("No WhatsApp database DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	dbDriver := cfg.DBDriver
	if dbDriver == "" {
		if DetectDSNType(dbDSN) == "postgres" {
			dbDriver = "postgres"
		} else {
			dbDriver = "sqlite3"
			// whatsmeow strongly recommends foreign keys on SQLite.
			if !strings.Contains(dbDSN, "foreign_keys") {
				slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled. "+
					"Consider adding '?_foreign_keys=on' to your connection string.",
					"dsn_example", "file:"+dbDSN+"?_foreign_keys=on")
			}
		}
	}

	slog.Debug("WhatsApp NewClient initializing DB store", "driver", dbDriver, "dsn_set", dbDSN != "")
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))

	if waClient.Store.ID == nil {
		slog.Info("WhatsApp login required; starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("Failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				slog.Debug("WhatsApp login event code received")
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("WhatsApp login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("WhatsApp already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("Failed to connect to WhatsApp server", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}

	slog.Info("WhatsApp client connected successfully")
	return &Client{
		waClient: waClient,
		sentIDs:  make(map[string]struct{}),
	}, nil
}

// SendMessage sends a WhatsApp text message to the specified recipient.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if body == "" {
		return models.ErrEmptyBody
	}

	slog.Debug("Sending WhatsApp message", "to", to, "body_length", len(body))
	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	resp, err := c.waClient.SendMessage(ctx, jid, msg)
	if err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	c.rememberSentID(string(resp.ID))

	slog.Debug("WhatsApp message sent successfully", "to", to)
	return nil
}

// SendImage uploads the image bytes and sends them as an image message with
// the given caption. Used for the payment reference QR code.
func (c *Client) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if len(image) == 0 {
		return fmt.Errorf("image payload cannot be empty")
	}

	slog.Debug("Uploading WhatsApp image", "to", to, "image_bytes", len(image))
	up, err := c.waClient.Upload(ctx, image, whatsmeow.MediaImage)
	if err != nil {
		slog.Error("Failed to upload WhatsApp image", "error", err, "to", to)
		return fmt.Errorf("failed to upload image for %s: %w", to, err)
	}

	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String("image/png"),
		URL:           &up.URL,
		DirectPath:    &up.DirectPath,
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    &up.FileLength,
	}}

	resp, err := c.waClient.SendMessage(ctx, jid, msg)
	if err != nil {
		slog.Error("Failed to send WhatsApp image", "error", err, "to", to)
		return fmt.Errorf("failed to send image to %s: %w", to, err)
	}
	c.rememberSentID(string(resp.ID))

	slog.Debug("WhatsApp image sent successfully", "to", to)
	return nil
}

// WasSentByBot reports whether the given message ID belongs to a message this
// client sent. Self-originated events with unknown IDs were typed by staff on
// another device of the business account.
func (c *Client) WasSentByBot(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sentIDs[id]
	return ok
}

// rememberSentID records an outbound message ID, evicting the oldest entry
// once the ring is full.
func (c *Client) rememberSentID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sentIDs[id]; ok {
		return
	}
	c.sentIDs[id] = struct{}{}
	c.sentOrder = append(c.sentOrder, id)
	if len(c.sentOrder) > sentIDCapacity {
		oldest := c.sentOrder[0]
		c.sentOrder = c.sentOrder[1:]
		delete(c.sentIDs, oldest)
	}
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// MockClient implements Sender but does nothing (for tests).
type MockClient struct{}

// NewMockClient creates a MockClient. Use it instead of NewClient in tests to
// avoid real WhatsApp connections.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, to string, image []byte, caption string) error {
	return nil
}
