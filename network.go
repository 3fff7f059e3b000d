package dngo

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, types.
//////

// lossScale divides the mean squared error in the network training loss.
// Inherited scaling constant, not a likelihood normalization; preserved
// numerically because the learning-rate and L2 defaults are tuned against it.
const lossScale = 0.001

// denseLayer is one fully connected layer. Weights are stored row-major,
// one row of length in per output unit. Hidden layers apply tanh; the output
// layer is linear.
type denseLayer struct {
	in  int
	out int

	w []float64 // out x in, row-major
	b []float64

	linear bool
}

// network is the feed-forward feature extractor:
//
//	Input(D) -> Dense(n1, tanh) -> Dense(n2, tanh) -> Dense(n3, tanh) -> Dense(1, linear)
//
// Weights are initialized He-normal, biases to zero. The penultimate layer's
// activations form the design matrix for the Bayesian linear layer; the final
// linear unit only exists to give the hidden layers a regression target
// during training.
type network struct {
	layers []*denseLayer
}

//////
// Methods.
//////

// params returns the trainable parameter groups in a fixed order (weights
// then bias, layer by layer). Optimizer state is laid out against this order.
func (nw *network) params() [][]float64 {
	out := make([][]float64, 0, 2*len(nw.layers))
	for _, layer := range nw.layers {
		out = append(out, layer.w, layer.b)
	}

	return out
}

// forward computes and caches the activations of every layer. acts[0] is the
// input, acts[l+1] the output of layer l.
func (nw *network) forward(x []float64) [][]float64 {
	acts := make([][]float64, len(nw.layers)+1)
	acts[0] = x

	for l, layer := range nw.layers {
		in := acts[l]
		out := make([]float64, layer.out)

		for o := 0; o < layer.out; o++ {
			sum := layer.b[o]

			wrow := layer.w[o*layer.in : (o+1)*layer.in]
			for i, v := range in {
				sum += wrow[i] * v
			}

			if layer.linear {
				out[o] = sum
			} else {
				out[o] = math.Tanh(sum)
			}
		}

		acts[l+1] = out
	}

	return acts
}

// Basis runs a forward pass up to (but not including) the final linear layer
// and returns the penultimate activations for every row of X: the N x H
// design matrix Theta.
func (nw *network) Basis(X *mat.Dense) *mat.Dense {
	n, _ := X.Dims()
	h := nw.layers[len(nw.layers)-1].in

	theta := mat.NewDense(n, h, nil)
	for i := 0; i < n; i++ {
		acts := nw.forward(X.RawRowView(i))
		theta.SetRow(i, acts[len(acts)-2])
	}

	return theta
}

// trainBatch accumulates backpropagated gradients of the training loss
//
//	mean((pred - target)^2) / lossScale + l2 * sum(w^2)
//
// over the minibatch rows selected by idx, applies one optimizer step, and
// returns the batch loss. The L2 penalty covers weights only, not biases.
func (nw *network) trainBatch(X *mat.Dense, y []float64, idx []int, l2 float64, opt gradientOptimizer) float64 {
	grads := zeroLike(nw.params())
	batch := float64(len(idx))

	var sqErr float64

	for _, ix := range idx {
		acts := nw.forward(X.RawRowView(ix))

		pred := acts[len(acts)-1][0]
		diff := pred - y[ix]
		sqErr += diff * diff

		// Output delta of the scaled mean squared error.
		delta := []float64{2 * diff / (batch * lossScale)}

		for l := len(nw.layers) - 1; l >= 0; l-- {
			layer := nw.layers[l]
			in := acts[l]

			gw := grads[2*l]
			gb := grads[2*l+1]

			var prev []float64
			if l > 0 {
				prev = make([]float64, layer.in)
			}

			for o := 0; o < layer.out; o++ {
				d := delta[o]
				gb[o] += d

				wrow := layer.w[o*layer.in : (o+1)*layer.in]
				grow := gw[o*layer.in : (o+1)*layer.in]

				for i, v := range in {
					grow[i] += d * v
					if l > 0 {
						prev[i] += d * wrow[i]
					}
				}
			}

			if l > 0 {
				// Chain through the previous layer's tanh.
				for i, a := range in {
					prev[i] *= 1 - a*a
				}
				delta = prev
			}
		}
	}

	loss := sqErr / (batch * lossScale)

	for l, layer := range nw.layers {
		gw := grads[2*l]
		for j, w := range layer.w {
			gw[j] += 2 * l2 * w
			loss += l2 * w * w
		}
	}

	opt.step(nw.params(), grads)

	return loss
}

//////
// Factory and helpers.
//////

// newNetwork builds the 4-layer architecture for inputs of width nIn with
// hidden widths n1, n2, n3.
func newNetwork(nIn, n1, n2, n3 int, rng *rand.Rand) *network {
	sizes := []int{nIn, n1, n2, n3, 1}

	layers := make([]*denseLayer, 0, len(sizes)-1)
	for l := 0; l < len(sizes)-1; l++ {
		layers = append(layers, newDenseLayer(sizes[l], sizes[l+1], l == len(sizes)-2, rng))
	}

	return &network{layers: layers}
}

// newDenseLayer allocates a layer with He-normal weights at unit gain
// (std = sqrt(1/fan_in)) and zero biases. Unit gain rather than the
// sqrt(2) variant: these layers are tanh, not ReLU.
func newDenseLayer(in, out int, linear bool, rng *rand.Rand) *denseLayer {
	layer := &denseLayer{
		in:     in,
		out:    out,
		w:      make([]float64, in*out),
		b:      make([]float64, out),
		linear: linear,
	}

	std := math.Sqrt(1.0 / float64(in))
	for j := range layer.w {
		layer.w[j] = rng.NormFloat64() * std
	}

	return layer
}

// minibatchIndices partitions {0..n-1} into consecutive batches of exactly
// batchSize, optionally over a shuffled order. The trailing remainder smaller
// than batchSize is dropped; those samples do not appear in any batch for
// that epoch. This is the intended boundary policy, not an off-by-one.
func minibatchIndices(n, batchSize int, shuffle bool, rng *rand.Rand) [][]int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	if shuffle {
		rng.Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	var batches [][]int
	for start := 0; start+batchSize <= n; start += batchSize {
		batches = append(batches, order[start:start+batchSize])
	}

	return batches
}
