// Command pam_single_kcm_cache is the PAM module. Build it with
//
//	go build -buildmode=c-shared -o pam_single_kcm_cache.so ./cmd/pam_single_kcm_cache
//
// and reference it from a PAM service, e.g.
//
//	session optional pam_single_kcm_cache.so random
package main

/*
#cgo LDFLAGS: -lpam
#include <stdlib.h>
#include <security/pam_appl.h>
#include "pam_helper.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/paulscherrerinstitute/pam-single-kcm-cache/internal/pamhook"
)

// handle adapts a pam_handle_t to pamhook.Handle.
type handle struct {
	pamh *C.pam_handle_t
}

func (h handle) item(itemType C.int) (string, error) {
	var status C.int
	s := C.kcm_get_item_string(h.pamh, itemType, &status)
	if status != C.PAM_SUCCESS {
		return "", fmt.Errorf("pam_get_item: %s", C.GoString(C.pam_strerror(h.pamh, status)))
	}
	if s == nil {
		return "", errors.New("pam_get_item: item not set")
	}
	return C.GoString(s), nil
}

func (h handle) User() (string, error) {
	return h.item(C.PAM_USER)
}

func (h handle) Service() string {
	s, _ := h.item(C.PAM_SERVICE)
	return s
}

func (h handle) Setenv(name, value string) error {
	entry := C.CString(name + "=" + value)
	defer C.free(unsafe.Pointer(entry))

	if status := C.kcm_putenv(h.pamh, entry); status != C.PAM_SUCCESS {
		return fmt.Errorf("pam_putenv: %s", C.GoString(C.pam_strerror(h.pamh, status)))
	}
	return nil
}

func goArgs(argc C.int, argv **C.char) []string {
	args := make([]string, 0, int(argc))
	for i := 0; i < int(argc); i++ {
		args = append(args, C.GoString(C.kcm_argv_at(argv, C.int(i))))
	}
	return args
}

func code(s pamhook.Status) C.int {
	if s == pamhook.Success {
		return C.PAM_SUCCESS
	}
	return C.PAM_IGNORE
}

//export pam_sm_authenticate
func pam_sm_authenticate(pamh *C.pam_handle_t, flags, argc C.int, argv **C.char) C.int {
	return code(pamhook.Authenticate())
}

//export pam_sm_setcred
func pam_sm_setcred(pamh *C.pam_handle_t, flags, argc C.int, argv **C.char) C.int {
	return code(pamhook.Consolidate(handle{pamh}, pamhook.HookSetcred, goArgs(argc, argv)))
}

//export pam_sm_acct_mgmt
func pam_sm_acct_mgmt(pamh *C.pam_handle_t, flags, argc C.int, argv **C.char) C.int {
	return code(pamhook.AcctMgmt())
}

//export pam_sm_open_session
func pam_sm_open_session(pamh *C.pam_handle_t, flags, argc C.int, argv **C.char) C.int {
	return code(pamhook.Consolidate(handle{pamh}, pamhook.HookOpenSession, goArgs(argc, argv)))
}

//export pam_sm_close_session
func pam_sm_close_session(pamh *C.pam_handle_t, flags, argc C.int, argv **C.char) C.int {
	return code(pamhook.CloseSession())
}

//export pam_sm_chauthtok
func pam_sm_chauthtok(pamh *C.pam_handle_t, flags, argc C.int, argv **C.char) C.int {
	return code(pamhook.Chauthtok())
}

func main() {}
