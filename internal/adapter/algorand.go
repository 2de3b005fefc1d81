package adapter

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/indexer"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	algotypes "github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/trivia-pay/internal/config"
	"github.com/trivia-pay/internal/errors"
	"github.com/trivia-pay/internal/logging"
	"github.com/trivia-pay/internal/models"
	"github.com/trivia-pay/internal/ratelimit"
	"github.com/trivia-pay/internal/retry"
)

// AlgorandLedger implements Ledger with the algod and indexer REST clients
type AlgorandLedger struct {
	algod         *algod.Client
	indexer       *indexer.Client
	limiter       *rate.Limiter
	budget        *ratelimit.RequestBudget
	timeout       time.Duration
	confirmRounds uint64
	retry         *retry.Config
	logger        *logging.Logger
}

// NewAlgorandLedger creates the clients described by cfg
func NewAlgorandLedger(cfg *config.LedgerConfig) (*AlgorandLedger, error) {
	algodClient, err := algod.MakeClient(cfg.AlgodURL, cfg.AlgodToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create algod client: %w", err)
	}
	indexerClient, err := indexer.MakeClient(cfg.IndexerURL, cfg.IndexerToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer client: %w", err)
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = cfg.RequestsPerSecond
	}

	confirmRounds := cfg.ConfirmRounds
	if confirmRounds == 0 {
		confirmRounds = 4
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.Retryable = retryableNodeError

	return &AlgorandLedger{
		algod:         algodClient,
		indexer:       indexerClient,
		limiter:       rate.NewLimiter(limit, burst),
		timeout:       cfg.Timeout,
		confirmRounds: confirmRounds,
		retry:         retryCfg,
		logger: logging.WithComponent("ledger").WithFields(map[string]interface{}{
			"network": cfg.Network,
			"algod":   cfg.AlgodURL,
		}),
	}, nil
}

// nodeStatusPattern matches the status the SDK puts in front of node error bodies
var nodeStatusPattern = regexp.MustCompile(`^HTTP (\d{3}):`)

// nodeStatus returns the HTTP status of an algod or indexer error, or 0 when
// the request never got a response
func nodeStatus(err error) int {
	m := nodeStatusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	status, _ := strconv.Atoi(m[1])
	return status
}

// classifyNodeError maps an algod or indexer failure onto the error categories.
// The SDK's typed errors (common.BadRequest, common.NotFound, ...) are plain
// error aliases, so the status code is the only reliable signal.
func classifyNodeError(source string, err error) *errors.CategorizedError {
	var classified *errors.CategorizedError
	switch status := nodeStatus(err); {
	case status == http.StatusTooManyRequests:
		classified = errors.NewRateLimitError(1)
	case status == http.StatusNotFound:
		classified = errors.NewNotFoundError("ledger object", source)
	case status >= 400 && status < 500:
		classified = errors.NewInvalidParameterError(source, fmt.Sprintf("rejected by node with status %d", status))
	default:
		return errors.NewLedgerError(source, err)
	}
	classified.Cause = err
	return classified
}

// retryableNodeError repeats transport failures, 5xx and 429 responses. Other
// 4xx responses will not change on a second attempt.
func retryableNodeError(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.IsRetryable(classifyNodeError("node", err))
}

// SetBudget makes every request also draw from a budget shared with other
// organizers, using the priority tagged on the request context
func (l *AlgorandLedger) SetBudget(b *ratelimit.RequestBudget) {
	l.budget = b
}

// call throttles and bounds one request, retrying transient failures
func (l *AlgorandLedger) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.WithRetry(ctx, l.retry, op, func(ctx context.Context, attempt int) error {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
		if l.budget != nil {
			if err := l.budget.Wait(ctx, ratelimit.PriorityFromContext(ctx)); err != nil {
				return err
			}
		}
		if l.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}
		return fn(ctx)
	})
}

// GetBalance returns the account balance in display units
func (l *AlgorandLedger) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var micro uint64
	err := l.call(ctx, OpBalance, func(ctx context.Context) error {
		info, err := l.algod.AccountInformation(address).Do(ctx)
		if err != nil {
			return err
		}
		micro = info.Amount
		return nil
	})
	if err != nil {
		return decimal.Zero, opError(OpBalance, address, err)
	}
	return models.MicroToDisplay(micro), nil
}

// GetAccountTransactions returns the account's most recent transactions from the indexer
func (l *AlgorandLedger) GetAccountTransactions(ctx context.Context, address string, limit int) ([]models.TransactionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []models.TransactionRecord
	err := l.call(ctx, OpTransactions, func(ctx context.Context) error {
		resp, err := l.indexer.LookupAccountTransactions(address).Limit(uint64(limit)).Do(ctx)
		if err != nil {
			return err
		}
		records = NormalizeTransactions(resp.Transactions)
		return nil
	})
	if err != nil {
		return nil, opError(OpTransactions, address, err)
	}

	l.logger.WithFields(map[string]interface{}{
		"address": models.ShortenAddress(address),
		"count":   len(records),
	}).Debug("Fetched account transactions")
	return records, nil
}

// GetAppGlobalState returns the decoded global state of the application
func (l *AlgorandLedger) GetAppGlobalState(ctx context.Context, appID uint64) ([]models.GlobalStateEntry, error) {
	var entries []models.GlobalStateEntry
	err := l.call(ctx, OpAppState, func(ctx context.Context) error {
		app, err := l.algod.GetApplicationByID(appID).Do(ctx)
		if err != nil {
			return err
		}
		entries = DecodeGlobalState(app.Params.GlobalState)
		return nil
	})
	if err != nil {
		return nil, opError(OpAppState, fmt.Sprintf("app %d", appID), err)
	}
	return entries, nil
}

// BuildPaymentTransaction builds an unsigned payment with current suggested params
func (l *AlgorandLedger) BuildPaymentTransaction(ctx context.Context, from, to string, amount decimal.Decimal, note []byte) (algotypes.Transaction, error) {
	var txn algotypes.Transaction
	err := l.call(ctx, OpBuild, func(ctx context.Context) error {
		params, err := l.algod.SuggestedParams().Do(ctx)
		if err != nil {
			return err
		}
		txn, err = transaction.MakePaymentTxn(from, to, models.DisplayToMicro(amount), note, "", params)
		return err
	})
	if err != nil {
		return algotypes.Transaction{}, opError(OpBuild, to, err)
	}
	return txn, nil
}

// SubmitSignedTransaction broadcasts signed bytes and waits for confirmation.
// Submission is not retried: a resend of the same bytes could be rejected as a duplicate.
func (l *AlgorandLedger) SubmitSignedTransaction(ctx context.Context, signed []byte) (*SubmitResult, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, opError(OpSubmit, "", err)
	}
	txID, err := l.algod.SendRawTransaction(signed).Do(ctx)
	if err != nil {
		return nil, opError(OpSubmit, "", err)
	}

	confirmation, err := transaction.WaitForConfirmation(l.algod, txID, l.confirmRounds, ctx)
	if err != nil {
		return nil, opError(OpSubmit, txID, err)
	}

	l.logger.WithFields(map[string]interface{}{
		"txId":  txID,
		"round": confirmation.ConfirmedRound,
	}).Info("Transaction confirmed")
	return &SubmitResult{TransactionID: txID, ConfirmedRound: confirmation.ConfirmedRound}, nil
}
