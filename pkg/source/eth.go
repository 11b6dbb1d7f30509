package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/internal/metrics"
	"github.com/chainsafe/evm-indexer/pkg/config"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

const resubscribeDelay = 5 * time.Second

// EthSource reads blocks over JSON-RPC and optionally listens for new heads over websocket.
type EthSource struct {
	client  *ethclient.Client
	ws      *ethclient.Client
	signer  types.Signer
	rl      ratelimit.Limiter
	timeout time.Duration
	logger  *zap.Logger
	hints   chan uint64
}

// NewEthSource dials the configured node and verifies its chain id.
func NewEthSource(ctx context.Context, cfg *config.ChainConfig, logger *zap.Logger) (*EthSource, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	// Websocket is optional; polling works without it
	var ws *ethclient.Client
	if cfg.WSURL != "" {
		ws, err = ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			logger.Warn("Failed to connect to WebSocket, falling back to polling", zap.Error(err))
			ws = nil
		}
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("chain id mismatch: node reports %s, configured %d", chainID, cfg.ChainID)
	}

	logger.Info("Connected to upstream node",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.Bool("websocket", ws != nil))

	return newEthSource(client, ws, chainID, cfg.RequestsPerSecond, cfg.FetchTimeout, logger), nil
}

func newEthSource(client, ws *ethclient.Client, chainID *big.Int, rps int, timeout time.Duration, logger *zap.Logger) *EthSource {
	rl := ratelimit.NewUnlimited()
	if rps > 0 {
		rl = ratelimit.New(rps)
	}
	return &EthSource{
		client:  client,
		ws:      ws,
		signer:  types.LatestSignerForChainID(chainID),
		rl:      rl,
		timeout: timeout,
		logger:  logger,
		hints:   make(chan uint64, 1),
	}
}

// Close closes the RPC clients
func (s *EthSource) Close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.ws != nil {
		s.ws.Close()
	}
}

// Hints delivers new head heights when a websocket connection is configured.
func (s *EthSource) Hints() <-chan uint64 {
	return s.hints
}

// WatchHeads forwards new-head notifications to Hints until ctx is done.
// It returns immediately when no websocket is configured.
func (s *EthSource) WatchHeads(ctx context.Context) {
	if s.ws == nil {
		return
	}

	for {
		heads := make(chan *types.Header, 16)
		sub, err := s.ws.SubscribeNewHead(ctx, heads)
		if err != nil {
			s.logger.Warn("Failed to subscribe to new heads", zap.Error(err))
		} else {
			s.forwardHeads(ctx, sub, heads)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (s *EthSource) forwardHeads(ctx context.Context, sub ethereum.Subscription, heads <-chan *types.Header) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			s.logger.Warn("New head subscription dropped", zap.Error(err))
			return
		case h := <-heads:
			// Keep only the latest hint.
			select {
			case s.hints <- h.Number.Uint64():
			default:
				select {
				case <-s.hints:
				default:
				}
				select {
				case s.hints <- h.Number.Uint64():
				default:
				}
			}
		}
	}
}

func (s *EthSource) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	s.rl.Take()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveRPC(method, start, err)
	return err
}

// LatestHeight returns the node's current block number.
func (s *EthSource) LatestHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := s.call(ctx, "eth_blockNumber", func(ctx context.Context) error {
		var err error
		height, err = s.client.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return height, nil
}

// HashAt returns the canonical hash at height.
func (s *EthSource) HashAt(ctx context.Context, height uint64) (common.Hash, error) {
	var header *types.Header
	err := s.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		header, err = s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return common.Hash{}, ErrBlockNotFound
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get header %d: %w", height, err)
	}
	return header.Hash(), nil
}

// BlockAt returns the block at height together with receipts and logs.
func (s *EthSource) BlockAt(ctx context.Context, height uint64) (*model.RawBlock, error) {
	var block *types.Block
	err := s.call(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		var err error
		block, err = s.client.BlockByNumber(ctx, new(big.Int).SetUint64(height))
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", height, err)
	}

	receipts, err := s.receipts(ctx, block)
	if err != nil {
		return nil, err
	}
	return s.toRawBlock(block, receipts), nil
}

// receipts loads all receipts of a block, falling back to per-transaction
// lookups on nodes without eth_getBlockReceipts. Every transaction must have a
// receipt, otherwise ErrReceiptNotFound is returned.
func (s *EthSource) receipts(ctx context.Context, block *types.Block) (map[common.Hash]*types.Receipt, error) {
	out := make(map[common.Hash]*types.Receipt, len(block.Transactions()))
	if len(block.Transactions()) == 0 {
		return out, nil
	}

	var receipts []*types.Receipt
	err := s.call(ctx, "eth_getBlockReceipts", func(ctx context.Context) error {
		var err error
		receipts, err = s.client.BlockReceipts(ctx, rpc.BlockNumberOrHashWithHash(block.Hash(), false))
		return err
	})
	if err == nil {
		for _, r := range receipts {
			if r != nil {
				out[r.TxHash] = r
			}
		}
		return out, checkReceipts(block, out)
	}
	s.logger.Debug("Block receipts unavailable, fetching per transaction",
		zap.Uint64("block", block.NumberU64()), zap.Error(err))

	for _, tx := range block.Transactions() {
		var r *types.Receipt
		err := s.call(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
			var err error
			r, err = s.client.TransactionReceipt(ctx, tx.Hash())
			return err
		})
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("block %d tx %s: %w", block.NumberU64(), tx.Hash(), ErrReceiptNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get receipt %s: %w", tx.Hash(), err)
		}
		out[tx.Hash()] = r
	}
	return out, checkReceipts(block, out)
}

func checkReceipts(block *types.Block, receipts map[common.Hash]*types.Receipt) error {
	for _, tx := range block.Transactions() {
		if receipts[tx.Hash()] == nil {
			return fmt.Errorf("block %d tx %s: %w", block.NumberU64(), tx.Hash(), ErrReceiptNotFound)
		}
	}
	return nil
}

func (s *EthSource) sender(tx *types.Transaction) common.Address {
	from, err := types.Sender(s.signer, tx)
	if err == nil {
		return from
	}
	if id := tx.ChainId(); id != nil && id.Sign() > 0 {
		if from, err = types.Sender(types.LatestSignerForChainID(id), tx); err == nil {
			return from
		}
	}
	s.logger.Debug("Could not recover sender", zap.String("tx", tx.Hash().Hex()), zap.Error(err))
	return common.Address{}
}

func (s *EthSource) toRawBlock(block *types.Block, receipts map[common.Hash]*types.Receipt) *model.RawBlock {
	raw := &model.RawBlock{
		Number:       block.NumberU64(),
		Hash:         block.Hash(),
		ParentHash:   block.ParentHash(),
		Timestamp:    time.Unix(int64(block.Time()), 0).UTC(),
		GasUsed:      block.GasUsed(),
		GasLimit:     block.GasLimit(),
		BaseFee:      block.BaseFee(),
		Miner:        block.Coinbase(),
		Transactions: make([]model.RawTransaction, 0, len(block.Transactions())),
	}

	for i, tx := range block.Transactions() {
		rtx := model.RawTransaction{
			Hash:     tx.Hash(),
			Index:    uint(i),
			From:     s.sender(tx),
			To:       tx.To(),
			Value:    tx.Value(),
			Gas:      tx.Gas(),
			GasPrice: tx.GasPrice(),
			Nonce:    tx.Nonce(),
			Type:     tx.Type(),
			Input:    tx.Data(),
		}
		if tx.Type() >= types.DynamicFeeTxType {
			rtx.GasFeeCap = tx.GasFeeCap()
			rtx.GasTipCap = tx.GasTipCap()
		}
		if r, ok := receipts[tx.Hash()]; ok && r != nil {
			rtx.Receipt = toRawReceipt(r)
		}
		raw.Transactions = append(raw.Transactions, rtx)
	}
	return raw
}

func toRawReceipt(r *types.Receipt) *model.RawReceipt {
	out := &model.RawReceipt{
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: r.EffectiveGasPrice,
		Logs:              make([]model.RawLog, 0, len(r.Logs)),
	}
	if r.ContractAddress != (common.Address{}) {
		addr := r.ContractAddress
		out.ContractAddress = &addr
	}
	for _, l := range r.Logs {
		out.Logs = append(out.Logs, model.RawLog{
			Index:   l.Index,
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
		})
	}
	return out
}
