package fl

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

// Envelope is the wire form of a broadcast or a contribution.
type Envelope struct {
	Kind    Kind            `cbor:"kind"`
	Site    string          `cbor:"site,omitempty"`
	Payload cbor.RawMessage `cbor:"payload"`
}

// Marshal encodes v with deterministic CBOR. Non-finite floats survive the
// round trip.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func EncodeBroadcast(b Broadcast) ([]byte, error) {
	if b == nil {
		return nil, errors.New("nil broadcast")
	}
	env, err := wrap(b.Kind(), "", b)
	if err != nil {
		return nil, err
	}

	return Marshal(env)
}

func DecodeBroadcast(data []byte) (Broadcast, error) {
	var env Envelope
	if err := Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode broadcast envelope: %w", err)
	}

	return env.Broadcast()
}

func EncodeContribution(c Contribution) ([]byte, error) {
	env, err := ContributionEnvelope(c)
	if err != nil {
		return nil, err
	}

	return Marshal(env)
}

func DecodeContribution(data []byte) (Contribution, error) {
	var env Envelope
	if err := Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode contribution envelope: %w", err)
	}

	return env.Contribution()
}

// EncodeContributions encodes a whole round as a CBOR array of envelopes.
func EncodeContributions(cs []Contribution) ([]byte, error) {
	envs := make([]Envelope, 0, len(cs))
	for _, c := range cs {
		env, err := ContributionEnvelope(c)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}

	return Marshal(envs)
}

func DecodeContributions(data []byte) ([]Contribution, error) {
	var envs []Envelope
	if err := Unmarshal(data, &envs); err != nil {
		return nil, fmt.Errorf("failed to decode round: %w", err)
	}

	cs := make([]Contribution, 0, len(envs))
	for _, env := range envs {
		c, err := env.Contribution()
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}

	return cs, nil
}

func ContributionEnvelope(c Contribution) (Envelope, error) {
	if c == nil {
		return Envelope{}, errors.New("nil contribution")
	}

	return wrap(c.Kind(), c.Site(), c)
}

// Broadcast decodes the payload according to Kind.
func (env Envelope) Broadcast() (Broadcast, error) {
	switch env.Kind {
	case KindKickoff:
		return decodePayload[Kickoff](env)
	case KindIterate:
		return decodePayload[Iterate](env)
	case KindHalted:
		return decodePayload[Halted](env)
	case KindMeanY:
		return decodePayload[MeanY](env)
	case KindCompleted:
		return decodePayload[Completed](env)
	case KindDeferred:
		return decodePayload[Deferred](env)
	default:
		return nil, fmt.Errorf("%w: broadcast %q", ErrUnknownKind, env.Kind)
	}
}

// Contribution decodes the payload according to Kind.
func (env Envelope) Contribution() (Contribution, error) {
	switch env.Kind {
	case KindPreprocessed:
		return decodePayload[Preprocessed](env)
	case KindGradient:
		return decodePayload[Gradient](env)
	case KindLocalStats:
		return decodePayload[LocalStats](env)
	case KindFinalStats:
		return decodePayload[FinalStats](env)
	case KindFailed:
		return decodePayload[Failed](env)
	default:
		return nil, fmt.Errorf("%w: contribution %q", ErrUnknownKind, env.Kind)
	}
}

func wrap(kind Kind, site string, v any) (Envelope, error) {
	payload, err := Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}

	return Envelope{Kind: kind, Site: site, Payload: payload}, nil
}

func decodePayload[T any](env Envelope) (T, error) {
	var v T
	if err := Unmarshal(env.Payload, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s payload: %w", env.Kind, err)
	}

	return v, nil
}
