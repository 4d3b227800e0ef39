// eth.go — Registrar поверх контракта MediaRegistry (go-ethereum).
package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// MediaRegistryABI — ABI контракта MediaRegistry.
const MediaRegistryABI = `[
	{"type":"function","name":"registerMedia","stateMutability":"nonpayable",
	 "inputs":[{"name":"_hash","type":"string"},{"name":"_metadata","type":"string"}],"outputs":[]},
	{"type":"function","name":"mediaRegistry","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[{"name":"hash","type":"string"},{"name":"metadata","type":"string"}]},
	{"type":"function","name":"mediaCount","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// EthConfig — параметры подключения к Ethereum.
type EthConfig struct {
	RPCURL          string
	ChainID         int64
	PrivateKeyHex   string
	ContractAddress string
}

// EthRegistrar — Registrar на контракте MediaRegistry.
type EthRegistrar struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	from     common.Address
	logger   *slog.Logger
}

// Compile-time проверка интерфейса.
var _ Registrar = (*EthRegistrar)(nil)

// NewEthRegistrar подключается к RPC и связывает ABI с адресом контракта.
func NewEthRegistrar(ctx context.Context, cfg EthConfig, logger *slog.Logger) (*EthRegistrar, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("некорректный адрес контракта: %q", cfg.ContractAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("некорректный приватный ключ: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(MediaRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора ABI: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к Ethereum RPC: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	from := crypto.PubkeyToAddress(key.PublicKey)

	logger.Info("Ethereum registrar инициализирован",
		slog.String("contract", address.Hex()),
		slog.String("from", from.Hex()),
		slog.Int64("chain_id", cfg.ChainID),
	)

	return &EthRegistrar{
		client:   client,
		contract: bind.NewBoundContract(address, parsed, client, client, client),
		key:      key,
		chainID:  big.NewInt(cfg.ChainID),
		from:     from,
		logger:   logger.With(slog.String("component", "ledger")),
	}, nil
}

// Name — имя зависимости в ответе readiness.
func (r *EthRegistrar) Name() string {
	return "ethereum"
}

// CheckReady проверяет доступность RPC и совпадение chain ID с конфигурацией.
func (r *EthRegistrar) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	chainID, err := r.client.ChainID(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Ethereum RPC недоступен: %v", err)
	}
	if chainID.Cmp(r.chainID) != 0 {
		return "fail", fmt.Sprintf("chain ID узла %s не совпадает с ожидаемым %s", chainID, r.chainID)
	}
	return "ok", "chain ID " + chainID.String()
}

// Close закрывает RPC-подключение.
func (r *EthRegistrar) Close() {
	r.client.Close()
}

// Register отправляет registerMedia и ждёт включения транзакции в блок.
// Квитанция — хэш транзакции.
func (r *EthRegistrar) Register(ctx context.Context, contentAddress string, metadata []byte) (string, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(r.key, r.chainID)
	if err != nil {
		return "", fmt.Errorf("ошибка создания transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := r.contract.Transact(opts, "registerMedia", contentAddress, string(metadata))
	if err != nil {
		return "", fmt.Errorf("ошибка отправки registerMedia: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, r.client, tx)
	if err != nil {
		return "", fmt.Errorf("ошибка ожидания транзакции %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("транзакция %s отклонена контрактом", tx.Hash().Hex())
	}

	r.logger.Debug("Адрес зарегистрирован в реестре",
		slog.String("content_address", contentAddress),
		slog.String("tx_hash", tx.Hash().Hex()),
	)
	return tx.Hash().Hex(), nil
}

// Count вызывает mediaCount().
func (r *EthRegistrar) Count(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "mediaCount"); err != nil {
		return 0, fmt.Errorf("ошибка вызова mediaCount: %w", err)
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("неожиданный тип mediaCount: %T", out[0])
	}
	return n.Uint64(), nil
}

// Find вызывает mediaRegistry(index).
func (r *EthRegistrar) Find(ctx context.Context, index uint64) (*Registration, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "mediaRegistry", new(big.Int).SetUint64(index)); err != nil {
		return nil, fmt.Errorf("ошибка вызова mediaRegistry(%d): %w", index, err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("mediaRegistry(%d): ожидалось 2 значения, получено %d", index, len(out))
	}
	hash, _ := out[0].(string)
	meta, _ := out[1].(string)
	return &Registration{Index: index, Hash: hash, Metadata: meta}, nil
}

// ListRegistrations читает все регистрации по индексу.
func (r *EthRegistrar) ListRegistrations(ctx context.Context) ([]Registration, error) {
	count, err := r.Count(ctx)
	if err != nil {
		return nil, err
	}
	regs := make([]Registration, 0, count)
	for i := uint64(0); i < count; i++ {
		reg, err := r.Find(ctx, i)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, nil
}
