// Package services defines shared utilities consumed by the dataset adapters,
// the pipeline driver, and the external tool wrappers.
//
// Key responsibilities:
//   - Context helpers that stamp run identifiers, dataset names, and adapter
//     steps for logging.
//   - Structured error markers plus the Wrap helper that let the driver and the
//     ledger classify failures (network, corrupt archive, missing inputs).
//
// Use these helpers when wiring a new adapter so failure classification and
// observability stay uniform across datasets.
package services
