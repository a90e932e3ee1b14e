package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/godex/internal/ledger"
	"github.com/betbot/godex/internal/metrics"
	"github.com/betbot/godex/internal/orchestrator"
	"github.com/betbot/godex/internal/session"
	"github.com/betbot/godex/internal/statusapi"
	"github.com/betbot/godex/pkg/config"
	"github.com/betbot/godex/pkg/etherconv"
	"github.com/betbot/godex/pkg/logger"
	"github.com/betbot/godex/pkg/shutdown"
	"github.com/betbot/godex/pkg/wallet"
)

const usage = `godex - exchange client

Usage: godex [flags] <command> [args]

Commands:
  balances                     print the cached and fresh balances
  orderbook                    print the order book for -symbol
  deposit-eth <eth>            deposit ether into the exchange
  withdraw-eth <eth>           withdraw ether from the exchange
  deposit-token <amount>       move tokens from wallet into the exchange
  withdraw-token <amount>      move tokens from the exchange back to the wallet
  buy <price-eth> <amount>     place a limit buy order
  sell <price-eth> <amount>    place a limit sell order
  transfer <to> <amount>       transfer tokens to another address
  approve <spender> <amount>   approve a token allowance
  add-token <symbol> <addr>    register a token with the exchange
  watch                        stream exchange and token events

Flags:
`

func main() {
	var (
		configPath = flag.String("config", "godex.yaml", "config file path")
		symbol     = flag.String("symbol", "FIXED", "token symbol")
		timeout    = flag.Duration("timeout", 2*time.Minute, "wait limit for transaction confirmation")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, cmdArgs := args[0], args[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	w, err := buildWallet(cfg)
	if err != nil {
		log.Fatalf("wallet: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := session.Dial(ctx, cfg, w)
	if err != nil {
		log.Fatalf("connect %s: %v", cfg.Network.RPCURL, err)
	}
	defer sess.Close()

	if cfg.StatusAPI.Enabled {
		if _, err := metrics.StartAsync(ctx, cfg.StatusAPI.ListenAddr); err != nil {
			logger.Warnf("metrics server: %v", err)
		}
	}

	if err := run(ctx, sess, command, cmdArgs, *symbol, *timeout, cfg); err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func buildWallet(cfg *config.Config) (*wallet.Wallet, error) {
	switch {
	case cfg.Wallet.PrivateKey != "":
		return wallet.FromPrivateKey(cfg.Wallet.PrivateKey)
	case cfg.Wallet.Mnemonic != "":
		path := cfg.Wallet.DerivationPath
		if path == "" {
			path = wallet.DefaultDerivationPath
		}
		return wallet.FromMnemonic(cfg.Wallet.Mnemonic, path)
	default:
		return nil, fmt.Errorf("no signing identity configured, set PRIVATE_KEY or MNEMONIC")
	}
}

func run(ctx context.Context, sess *session.Session, command string, args []string, symbol string, timeout time.Duration, cfg *config.Config) error {
	switch command {
	case "balances":
		return printBalances(ctx, sess, symbol)
	case "orderbook":
		return printOrderBook(ctx, sess, symbol)
	case "deposit-eth":
		wei, err := oneWeiArg(args, "eth amount", etherconv.ParseEtherToWei)
		if err != nil {
			return err
		}
		return await(ctx, timeout, func() (*orchestrator.Pending, error) {
			return sess.DepositEther(ctx, wei)
		})
	case "withdraw-eth":
		wei, err := oneWeiArg(args, "eth amount", etherconv.ParseEtherToWei)
		if err != nil {
			return err
		}
		return await(ctx, timeout, func() (*orchestrator.Pending, error) {
			return sess.WithdrawEther(ctx, wei)
		})
	case "deposit-token":
		amount, err := oneWeiArg(args, "token amount", parseUnits)
		if err != nil {
			return err
		}
		return await(ctx, timeout, func() (*orchestrator.Pending, error) {
			return sess.DepositToken(ctx, symbol, amount)
		})
	case "withdraw-token":
		amount, err := oneWeiArg(args, "token amount", parseUnits)
		if err != nil {
			return err
		}
		return await(ctx, timeout, func() (*orchestrator.Pending, error) {
			return sess.WithdrawToken(ctx, symbol, amount)
		})
	case "buy", "sell":
		if len(args) != 2 {
			return fmt.Errorf("expected <price-eth> <amount>")
		}
		price, err := etherconv.ParseEtherToWei(args[0])
		if err != nil {
			return fmt.Errorf("price: %w", err)
		}
		amount, err := parseUnits(args[1])
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		return await(ctx, timeout, func() (*orchestrator.Pending, error) {
			if command == "buy" {
				return sess.PlaceBuyOrder(ctx, symbol, price, amount)
			}
			return sess.PlaceSellOrder(ctx, symbol, price, amount)
		})
	case "transfer":
		to, amount, err := addressAmountArgs(args)
		if err != nil {
			return err
		}
		return await(ctx, timeout, func() (*orchestrator.Pending, error) {
			return sess.TransferToken(ctx, symbol, to, amount)
		})
	case "approve":
		spender, amount, err := addressAmountArgs(args)
		if err != nil {
			return err
		}
		return await(ctx, timeout, func() (*orchestrator.Pending, error) {
			return sess.ApproveToken(ctx, spender, amount)
		})
	case "add-token":
		if len(args) != 2 {
			return fmt.Errorf("expected <symbol> <address>")
		}
		if !common.IsHexAddress(args[1]) {
			return fmt.Errorf("invalid token address %q", args[1])
		}
		return await(ctx, timeout, func() (*orchestrator.Pending, error) {
			return sess.AddTokenToExchange(ctx, args[0], common.HexToAddress(args[1]))
		})
	case "watch":
		return watchEvents(ctx, sess, cfg)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// await submits the operation and blocks until it is mined or the timeout
// elapses. The session keeps tracking past a timeout; we only stop waiting.
func await(ctx context.Context, timeout time.Duration, submit func() (*orchestrator.Pending, error)) error {
	pending, err := submit()
	if err != nil {
		return err
	}
	fmt.Printf("submitted %s tx=%s\n", pending.Method, pending.TxHash.Hex())

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, reason, err := pending.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("still pending after %s, tx=%s", timeout, pending.TxHash.Hex())
	}
	if status == orchestrator.StatusFailed {
		return fmt.Errorf("transaction failed: %s", reason)
	}
	fmt.Printf("confirmed %s tx=%s\n", pending.Method, pending.TxHash.Hex())
	return nil
}

func printBalances(ctx context.Context, sess *session.Session, symbol string) error {
	if err := sess.RefreshBalances(ctx, symbol); err != nil {
		return err
	}
	snapshot, err := sess.BalanceSnapshot()
	if err != nil {
		return err
	}

	assets := make([]string, 0, len(snapshot))
	for asset := range snapshot {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	account, _ := sess.Account()
	fmt.Printf("account %s\n", account.Hex())
	for _, asset := range assets {
		amount := snapshot[asset]
		if asset == session.NativeAsset {
			fmt.Printf("  %-16s %s\n", "exchange ETH", etherconv.FormatWei(amount))
			continue
		}
		fmt.Printf("  %-16s %s\n", asset, amount.String())
	}
	return nil
}

func printOrderBook(ctx context.Context, sess *session.Session, symbol string) error {
	view, err := sess.OrderBook(ctx, symbol)
	if err != nil {
		return err
	}

	fmt.Printf("order book %s (fetched %s)\n", view.Symbol, view.FetchedAt.Format("15:04:05"))
	fmt.Println("  asks (sell offers):")
	if len(view.Asks) == 0 {
		fmt.Println("    <empty>")
	}
	for _, l := range view.Asks {
		fmt.Printf("    %s @ %s\n", l.Volume.String(), etherconv.FormatWei(l.Price))
	}
	fmt.Println("  bids (buy offers):")
	if len(view.Bids) == 0 {
		fmt.Println("    <empty>")
	}
	for _, l := range view.Bids {
		fmt.Printf("    %s @ %s\n", l.Volume.String(), etherconv.FormatWei(l.Price))
	}
	return nil
}

func watchEvents(ctx context.Context, sess *session.Session, cfg *config.Config) error {
	if _, err := sess.WatchExchangeEvents(ctx, func(ev ledger.Event) {
		printEvent("exchange", ev)
	}); err != nil {
		return err
	}
	if _, err := sess.WatchTokenEvents(ctx, func(ev ledger.Event) {
		printEvent("token", ev)
	}); err != nil {
		return err
	}

	if cfg.StatusAPI.Enabled {
		api := statusapi.New(sess, statusAPIAddr(cfg))
		go func() {
			if err := api.Start(ctx); err != nil {
				logger.Warnf("status api: %v", err)
			}
		}()
	}

	fmt.Println("watching events, Ctrl+C to stop...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(shutdownCtx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		sess.Close()
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)
	return nil
}

// statusAPIAddr offsets the API one port above the metrics listener so both
// can share one configured address.
func statusAPIAddr(cfg *config.Config) string {
	addr := cfg.StatusAPI.ListenAddr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		var port int
		if _, err := fmt.Sscanf(addr[i+1:], "%d", &port); err == nil {
			return fmt.Sprintf("%s:%d", addr[:i], port+1)
		}
	}
	return addr
}

func printEvent(source string, ev ledger.Event) {
	parts := make([]string, 0, len(ev.Args))
	for k, v := range ev.Args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	fmt.Printf("[%s] %-10s %-24s block=%d %s\n",
		time.Now().Format("15:04:05"), source, ev.Kind, ev.ID.Block, strings.Join(parts, " "))
}

func oneWeiArg(args []string, what string, parse func(string) (*big.Int, error)) (*big.Int, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one argument: %s", what)
	}
	v, err := parse(args[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}

func addressAmountArgs(args []string) (common.Address, *big.Int, error) {
	if len(args) != 2 {
		return common.Address{}, nil, fmt.Errorf("expected <address> <amount>")
	}
	if !common.IsHexAddress(args[0]) {
		return common.Address{}, nil, fmt.Errorf("invalid address %q", args[0])
	}
	amount, err := parseUnits(args[1])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("amount: %w", err)
	}
	return common.HexToAddress(args[0]), amount, nil
}

// parseUnits reads a raw integer token amount. The classroom token has no
// decimals, so no scaling happens here.
func parseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
