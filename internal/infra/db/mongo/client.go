package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	appName         = "socialnet"
	connectTimeout  = 10 * time.Second
	selectorTimeout = 5 * time.Second
)

var errMissingDSN = errors.New("mongo uri and database are required")

// Client owns the driver connection and the chat database handle.
type Client struct {
	DB *mongo.Database
}

func clientOptions(uri string) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetAppName(appName).
		SetRetryWrites(true).
		SetServerSelectionTimeout(selectorTimeout)
}

// New connects and verifies the primary is reachable before returning.
func New(ctx context.Context, uri, database string) (*Client, error) {
	uri = strings.TrimSpace(uri)
	database = strings.TrimSpace(database)
	if uri == "" || database == "" {
		return nil, errMissingDSN
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	m, err := mongo.Connect(ctx, clientOptions(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := m.Ping(ctx, readpref.Primary()); err != nil {
		_ = m.Disconnect(context.Background())
		return nil, fmt.Errorf("ping primary: %w", err)
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, readpref.Primary())
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}
