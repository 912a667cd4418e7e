// Package browser drives a single Chromium session through Playwright to ask
// a web search UI a question and read back the generated answer.
//
// # Architecture
//
// The package is built around a handful of cooperating parts:
//
//  1. Manager: owns the one live Session (browser + page), creates it lazily
//     and tears it down on an idle timer or on shutdown
//  2. Navigator: loads the target site, falling back through Playwright load
//     states, and confirms the page is usable
//  3. SelectorFinder: probes an ordered list of candidate selectors for the
//     query input, because the target markup changes between deployments
//  4. RecoveryMachine: maps a failure to a RecoveryLevel and performs the
//     matching remediation, escalating to a full restart when it must
//  5. Searcher: the request/response operation built on top of the above
//
// # Search Flow
//
// A call to Searcher.Search:
//
//  1. Ensures a Session exists
//  2. Waits out the per-session cooldown
//  3. Runs up to MaxAttempts attempts: challenge check, input re-validation,
//     typing and submitting, waiting for the answer container, waiting for
//     generation to finish, extraction and normalization
//  4. Hands every failed attempt to the RecoveryMachine before retrying
//
// Only SearchFailedError (budget exhausted) or RecoveryError (a full restart
// failed) ever reach the caller. Screenshots and secondary close errors are
// advisory: they are logged and dropped.
//
// # Concurrency
//
// Searcher serializes Search calls with a mutex. The idle timer never tears
// down a Session while a search is in flight; it re-arms instead.
//
// # Example Usage
//
//	cfg := config.DefaultConfig()
//	log := logging.MustLogger("browser")
//	finder := browser.NewSelectorFinder(cfg, log)
//	nav, err := browser.NewNavigator(cfg, finder, log)
//	manager := browser.NewManager(cfg, nav, log)
//	defer manager.Shutdown()
//
//	searcher := browser.NewSearcher(cfg, manager,
//	    browser.NewRecoveryMachine(manager, log), finder, log)
//	answer, err := searcher.Search(ctx, "capital of France")
package browser
