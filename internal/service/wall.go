package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/photo-wall/internal/apperror"
	"github.com/sakif/photo-wall/internal/broadcast"
	"github.com/sakif/photo-wall/internal/repository"
	"github.com/sakif/photo-wall/internal/wall"
)

// WallFeed connects displays to the broadcast channel.
//
// CONNECT ORDER:
// A display subscribes to the hub first and reads the photo snapshot second.
// A photo admitted in between shows up in both, and the session's
// dedup-by-content-ref drops the second copy. The other order would lose it.
type WallFeed struct {
	hub    *broadcast.Hub
	photos repository.PhotoRepository
	cfg    wall.Config
	logger *slog.Logger
}

// NewWallFeed creates a WallFeed whose sessions use cfg to size their grids.
func NewWallFeed(hub *broadcast.Hub, photos repository.PhotoRepository, cfg wall.Config, logger *slog.Logger) *WallFeed {
	return &WallFeed{hub: hub, photos: photos, cfg: cfg, logger: logger}
}

// WallConn is one display's live session and its subscription.
// It is owned by the goroutine serving the display.
type WallConn struct {
	session *wall.Session
	sub     *broadcast.Subscription
	feed    *WallFeed
}

// Connect subscribes a new display, seeds its grid from the photo history
// and returns the instructions that lay out the seed.
func (f *WallFeed) Connect(ctx context.Context, v wall.Viewport) (*WallConn, []wall.Instruction, error) {
	sub := f.hub.Subscribe()

	photos, err := f.photos.ListPhotos(ctx)
	if err != nil {
		f.hub.Unsubscribe(sub)
		return nil, nil, fmt.Errorf("service/wall: loading snapshot: %w", err)
	}

	session := wall.NewSession(sub.ID, f.cfg, nil)
	seed, err := session.Seed(v, photos)
	if err != nil {
		f.hub.Unsubscribe(sub)
		return nil, nil, fmt.Errorf("service/wall: %w", err)
	}

	f.logger.Info("wall connected",
		slog.String("session", sub.ID),
		slog.Int("width", v.Width),
		slog.Int("height", v.Height),
		slog.Int("seeded", session.Grid().Len()),
		slog.Int("capacity", session.Grid().Capacity()),
	)

	return &WallConn{session: session, sub: sub, feed: f}, seed, nil
}

// Announce republishes a display's self-announcement of a photo.
//
// Only photos that were actually admitted are republished, and with their
// recorded caption, so a display cannot put arbitrary references on every
// other wall. An unknown ref is ignored.
func (f *WallFeed) Announce(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	photo, err := f.photos.GetPhotoByContentRef(ctx, ref)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			f.logger.Debug("ignoring announcement of unknown photo", slog.String("contentRef", ref))
			return nil
		}
		return fmt.Errorf("service/wall: looking up %s: %w", ref, err)
	}
	f.hub.Publish(broadcast.EventFor(photo))
	return nil
}

// ID is the session identifier, shared with the hub subscription.
func (c *WallConn) ID() string { return c.session.ID }

// Events delivers photos published after Connect. It is closed when the
// connection is closed or the hub cuts the subscriber off for lagging.
func (c *WallConn) Events() <-chan broadcast.Event { return c.sub.C }

// Offer places e on this display's grid. A photo already on the grid, or
// one with no free cell, yields no instructions.
func (c *WallConn) Offer(e broadcast.Event) ([]wall.Instruction, error) {
	return c.session.Offer(e.ContentRef, e.Caption)
}

// Resize adapts future placements to a new viewport.
func (c *WallConn) Resize(v wall.Viewport) {
	c.session.Resize(v)
}

// Close unsubscribes and discards the grid. Idempotent.
func (c *WallConn) Close() {
	if c.session.State() == wall.Closed {
		return
	}
	c.feed.hub.Unsubscribe(c.sub)
	c.session.Close()
	c.feed.logger.Info("wall disconnected", slog.String("session", c.session.ID))
}
