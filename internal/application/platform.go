package application

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/ticket-bridge/internal/bridge"
	"github.com/psds-microservice/ticket-bridge/internal/config"
	"github.com/psds-microservice/ticket-bridge/internal/discord"
)

// Platform подключение к Discord: сессия шлюза, цикл, в котором выполняются все
// REST-вызовы, и клиент для остальных компонентов.
type Platform struct {
	Loop    *bridge.Loop
	Session *discord.Session
	Client  *bridge.Client
}

func NewPlatform(cfg *config.Config) (*Platform, error) {
	loop := bridge.NewLoop(256, cfg.Sync.BridgeTimeout)
	session, err := discord.New(cfg.Discord.Token, loop)
	if err != nil {
		return nil, err
	}
	return &Platform{
		Loop:    loop,
		Session: session,
		Client:  bridge.NewClient(loop, session, cfg.Sync.BridgeTimeout),
	}, nil
}

// Start запускает цикл и подключает шлюз в фоне, повторяя первое подключение до
// отмены ctx. После первого успешного Open discordgo переподключается сам.
func (p *Platform) Start(ctx context.Context) {
	go func() {
		if err := p.Loop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("bridge: loop: %v", err)
		}
	}()
	go p.connect(ctx)
}

func (p *Platform) connect(ctx context.Context) {
	backoff := 2 * time.Second
	for {
		err := p.Session.Open(ctx)
		if err == nil {
			return
		}
		log.Printf("%v; retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

// WaitReady ждёт готовности шлюза, но не дольше timeout.
func (p *Platform) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Loop.WaitReady(ctx); err != nil {
		return fmt.Errorf("discord did not become ready within %s: %w", timeout, err)
	}
	return nil
}

func (p *Platform) Close() error {
	return p.Session.Close()
}
