// Package ledger 负责为成功的会话发放奖励代币。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Minter 铸造代币并返回交易标识。
type Minter interface {
	Mint(ctx context.Context, amount int) (string, error)
}

// Config 描述目标网络。
type Config struct {
	Network     string
	MintAddress string
}

// SimulatedMinter 不访问真实网络，只生成模拟的交易签名。
type SimulatedMinter struct {
	cfg Config
}

func NewSimulatedMinter(cfg Config) *SimulatedMinter {
	if cfg.Network == "" {
		cfg.Network = "devnet"
	}
	return &SimulatedMinter{cfg: cfg}
}

func (m *SimulatedMinter) Mint(ctx context.Context, amount int) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("invalid mint amount %d", amount)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.cfg.MintAddress == "" {
		return "", errors.New("mint address not configured")
	}

	signature := "simulated_tx_signature_" + uuid.NewString()
	log.Printf("[ledger] minted %d token(s) on %s mint=%s tx=%s", amount, m.cfg.Network, m.cfg.MintAddress, signature)
	return signature, nil
}
