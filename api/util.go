package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/util"
)

func WriteErr(w http.ResponseWriter, errStr string) {
	WriteJSON(w, http.StatusBadRequest, &Error{Error: errStr})
}

// WriteError writes error with its kind. Status code follows the kind
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusCode(err), ErrorFrom(err))
}

func ErrorFrom(err error) Error {
	if err == nil {
		return Error{}
	}
	return Error{Error: err.Error(), Kind: global.KindOf(err).String()}
}

func StatusCode(err error) int {
	var e *global.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case global.KindValidation:
		return http.StatusBadRequest
	case global.KindNotRegistered:
		return http.StatusForbidden
	case global.KindTransactionRejected, global.KindTransactionReverted:
		return http.StatusConflict
	case global.KindConnectionFailed, global.KindMalformedResponse:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func WriteOk(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, &Error{})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	respBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	SetHeader(w)
	w.WriteHeader(code)
	_, err = w.Write(respBytes)
	util.AssertNoError(err)
}

func SetHeader(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}
