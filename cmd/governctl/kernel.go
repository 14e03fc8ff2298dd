/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package main

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/marcus-qen/governor/internal/audit"
	"github.com/marcus-qen/governor/internal/config"
	"github.com/marcus-qen/governor/internal/harness"
	"github.com/marcus-qen/governor/internal/orchestrator"
	"github.com/marcus-qen/governor/internal/provider"
	"github.com/marcus-qen/governor/internal/registry"
	"github.com/marcus-qen/governor/internal/statemgr"
)

// kernel bundles the components every subcommand wires together,
// assembled once from loaded configuration.
type kernel struct {
	cfg   config.Config
	log   logr.Logger
	reg   *registry.Registry
	state *statemgr.Manager
	orch  *orchestrator.Orchestrator
}

func newLogger(cfg config.Config) logr.Logger {
	zcfg := zap.NewProductionConfig()
	if cfg.LogLevel != "" {
		var lvl zap.AtomicLevel
		if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			zcfg.Level = lvl
		}
	}
	zl, err := zcfg.Build()
	if err != nil {
		zl = zap.NewNop()
	}
	return zapr.NewLogger(zl)
}

func newKernel(ctx context.Context) (*kernel, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg)

	reg := registry.New(log).WithOCIAuth(cfg.OCIUsername, cfg.OCIPassword)
	if err := reg.Load(ctx, cfg.ContractsDir); err != nil {
		return nil, fmt.Errorf("load agent registry from %q: %w", cfg.ContractsDir, err)
	}

	var prov provider.Provider
	if cfg.HasLLM() {
		prov, err = provider.NewProvider(provider.ProviderConfig{
			Type:     cfg.LLM.Provider,
			Endpoint: cfg.LLM.BaseURL,
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("build LLM provider: %w", err)
		}
	} else {
		prov = provider.NewMockProvider(nil, nil)
	}

	sink := audit.New(cfg.VarDir + "/audit")
	h := harness.New(reg, prov, sink, log).
		WithRetryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BaseBackoff).
		WithCallTimeout(cfg.CallTimeout)

	state, err := statemgr.New(cfg.VarDir+"/state", log)
	if err != nil {
		return nil, fmt.Errorf("open state manager at %q: %w", cfg.VarDir, err)
	}

	return &kernel{
		cfg:   cfg,
		log:   log,
		reg:   reg,
		state: state,
		orch:  orchestrator.New(h, state, log),
	}, nil
}
