// Package retry provides opt-in bounded retry for whole connection attempts.
//
// A connection attempt is resolve credentials, mint a token, dial. Because an
// IAM token is single-use-oriented and short-lived, a retry always re-runs the
// entire attempt; the operation passed to Execute must mint its own token.
//
// # Example Usage
//
//	executor := retry.NewExecutor(
//	    retry.NewConnectClassifier(),
//	    retry.NewExponentialBackoff(3),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    conn, err = connector.ConnectOnce(ctx, "app_user")
//	    return err
//	})
//
// # Error Classification
//
// ConnectClassifier treats credential resolution failures, missing transport
// encryption, configuration errors and authorization denials from the token
// service as fatal. Throttling, network failures and transient PostgreSQL
// conditions are retried.
//
// # Thread Safety
//
// Executor instances are safe for concurrent use. Use WithOnRetry() to create
// independent configurations per goroutine.
package retry
