package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/absmach/fedridge/aggregator"
	pkgerrors "github.com/absmach/fedridge/pkg/errors"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType     = "application/json"
	CBORContentType = "application/cbor"

	MaxLimitSize = 100
)

// CBORResponse is a response whose body is already CBOR.
type CBORResponse interface {
	supermq.Response
	CBOR() ([]byte, error)
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

// EncodeCBORResponse writes CBOR bodies. Statistics may hold ±Inf, which
// JSON cannot carry.
func EncodeCBORResponse(_ context.Context, w http.ResponseWriter, response any) error {
	cr, ok := response.(CBORResponse)
	if !ok {
		return errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
	}

	body, err := cr.CBOR()
	if err != nil {
		return err
	}

	for k, v := range cr.Headers() {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", CBORContentType)
	w.WriteHeader(cr.Code())
	if cr.Empty() {
		return nil
	}
	_, err = w.Write(body)

	return err
}

type errorRes struct {
	Err string `json:"error"`
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	switch {
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, fl.ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidData):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, pkgerrors.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, pkgerrors.ErrEntityExists),
		errors.Is(err, aggregator.ErrRunFailed),
		errors.Is(err, fl.ErrRunCompleted),
		errors.Is(err, aggregator.ErrResultNotReady),
		errors.Is(err, aggregator.ErrIncompleteRound):
		w.WriteHeader(http.StatusConflict)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	if err := json.NewEncoder(w).Encode(errorRes{Err: err.Error()}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
