/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package inspector

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/play-co/NativeInspector/internal/profiles"
	"github.com/play-co/NativeInspector/internal/v8debug"
)

type TargetsConfig struct {
	Selector  *TargetSelector
	Profiles  *profiles.Cache
	Forwarder v8debug.Forwarder
	Log       logr.Logger

	ReconnectDelay time.Duration
	RequestTimeout time.Duration
}

// Targets creates a debug link for every target address and offers it to the selector.
// Links run in the errgroup until its context is cancelled.
type Targets struct {
	ctx   context.Context
	group *errgroup.Group
	cfg   TargetsConfig

	lock  *sync.Mutex
	links map[string]*v8debug.Link
}

func NewTargets(ctx context.Context, group *errgroup.Group, cfg TargetsConfig) *Targets {
	if cfg.Profiles != nil {
		ForgetProfilesOnTargetLoss(cfg.Selector, cfg.Profiles)
	}

	return &Targets{
		ctx:   ctx,
		group: group,
		cfg:   cfg,
		lock:  &sync.Mutex{},
		links: make(map[string]*v8debug.Link),
	}
}

// ForgetProfilesOnTargetLoss empties the cache when the selected target disconnects.
// Profile identifiers only make sense for the engine instance that assigned them.
// Targets that are connected but not selected never touch the cache.
func ForgetProfilesOnTargetLoss(selector *TargetSelector, cache *profiles.Cache) {
	selector.Subscribe(cache, v8debug.TopicClose, func(v8debug.Notification) {
		cache.Clear()
	})
}

// Add starts connecting to the target at the address (host:port).
// It returns false if the target is already known.
func (t *Targets) Add(address string) bool {
	t.lock.Lock()
	if _, found := t.links[address]; found {
		t.lock.Unlock()
		t.cfg.Log.V(1).Info("Debug target is already known", "Target", address)
		return false
	}

	link := v8debug.NewLink(v8debug.LinkConfig{
		Address:        address,
		Log:            t.cfg.Log,
		Forwarder:      t.cfg.Forwarder,
		ReconnectDelay: t.cfg.ReconnectDelay,
		RequestTimeout: t.cfg.RequestTimeout,
	})
	t.links[address] = link
	t.lock.Unlock()

	t.cfg.Selector.Add(link)
	t.group.Go(func() error {
		return link.Run(t.ctx)
	})
	return true
}
