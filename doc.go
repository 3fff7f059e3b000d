// Package dngo implements a Bayesian optimization toolkit built around the
// DNGO surrogate model (Deep Networks for Global Optimization): a feed-forward
// neural network learns a nonlinear basis-function embedding of the input
// space, and Bayesian linear regression on the network's last-hidden-layer
// activations supplies a closed-form Gaussian predictive distribution. The
// precision hyperparameters of the linear layer are marginalized either by
// direct evidence maximization or by ensemble MCMC sampling, and the resulting
// per-sample predictions are fused into a single mean/variance via the law of
// total variance.
//
// # Features
//
// The package includes the following key features:
//
//   - DNGO surrogate: neural basis functions + Bayesian linear regression,
//     with hyperparameter marginalization over (alpha, beta)
//   - Standalone Bayesian linear regression model with closed-form posterior
//     and optional evidence maximization
//   - Affine-invariant ensemble MCMC sampler with warm-started chains across
//     successive training calls
//   - Explicit per-parameter optimizers (Adam and SMORMS3) with a stateful
//     learning-rate schedule
//   - Capability-based model contract: anything exposing Train/Predict can be
//     used as a surrogate
//   - Bayesian optimization loop with multiple acquisition functions: Upper
//     Confidence Bound (UCB), Probability of Improvement (PI), Expected
//     Improvement (EI), and Thompson Sampling
//   - Progress monitoring via channels
//   - Structured logging via zap
//
// # Surrogate models
//
// Two surrogates are provided, both satisfying the Surrogate interface:
//
//  1. BayesianLinearRegression: linear model on a fixed design matrix. Use it
//     directly when the features are already informative.
//
//  2. DNGO: trains a 3-hidden-layer tanh network on the data, extracts the
//     penultimate-layer activations as the design matrix, and fits one
//     BayesianLinearRegression per hyperparameter sample.
//
//     model := NewDNGO(DefaultDNGOConfig())
//     if err := model.Train(X, y); err != nil { ... }
//     mean, variance, err := model.Predict(XTest)
//
// # Hyperparameter marginalization
//
// With DoOptimize disabled, the fixed (Alpha, Beta) from the configuration are
// used as a single-element ensemble. With DoOptimize enabled, DNGO either
// maximizes the log evidence with a derivative-free Nelder-Mead search
// (DoMCMC=false) or samples NHypers (alpha, beta) pairs with an ensemble MCMC
// sampler (DoMCMC=true). The MCMC chain burns in exactly once per model
// instance; later Train calls warm-start from the previous chain's final
// position.
//
// # Concurrency
//
// Model instances are single-threaded: Train and Predict run to completion on
// the calling goroutine and must not be invoked concurrently on the same
// instance. Independent optimization runs with separate configurations and
// surrogates may run in parallel.
package dngo
