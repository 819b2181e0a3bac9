package errs

import (
	"errors"
	"net/http"
)

// Code is a stable machine-readable error code surfaced to clients.
type Code string

const (
	CodeFail                   Code = "FAIL"
	CodeNoValue                Code = "NO_VALUE"
	CodeInvalidParameter       Code = "INVALID_PARAMETER"
	CodeNoSearchData           Code = "NO_SEARCH_DATA"
	CodeNoDBDriver             Code = "NO_DB_DRIVER"
	CodeInvalidDBDriver        Code = "INVALID_DB_DRIVER"
	CodeFailConnectDB          Code = "FAIL_CONNECT_DB"
	CodeFailExecuteQuery       Code = "FAIL_EXECUTE_QUERY"
	CodeQueryTimeout           Code = "QUERY_TIMEOUT"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeFailFindSchemas        Code = "FAIL_FIND_SCHEMAS"
	CodeFailFindDatabases      Code = "FAIL_FIND_DATABASES"
	CodeFailFindConstraints    Code = "FAIL_FIND_CONSTRAINTS"
	CodeFailFindIndexes        Code = "FAIL_FIND_INDEXES"
	CodeFailFindSampleRows     Code = "FAIL_FIND_SAMPLE_ROWS"
	CodeStoreBusy              Code = "STORE_BUSY"
	CodeFailCreateAnnotation   Code = "FAIL_CREATE_ANNOTATION"
	CodeFailFindAnnotation     Code = "FAIL_FIND_ANNOTATION"
	CodeFailDeleteAnnotation   Code = "FAIL_DELETE_ANNOTATION"
	CodeInvalidAnnotationReq   Code = "INVALID_ANNOTATION_REQUEST"
	CodeNoAnnotationForProfile Code = "NO_ANNOTATION_FOR_PROFILE"
	CodeFailSaveProfile        Code = "FAIL_SAVE_PROFILE"
	CodeFailFindProfile        Code = "FAIL_FIND_PROFILE"
	CodeFailExportAnnotation   Code = "FAIL_EXPORT_ANNOTATION"
	CodeDuplication            Code = "DUPLICATION"
	CodeFailDecrypt            Code = "FAIL_DECRYPT"
	CodeFailAIConnection       Code = "FAIL_AI_SERVER_CONNECTION"
	CodeFailAIProcessing       Code = "FAIL_AI_SERVER_PROCESSING"
)

var httpStatus = map[Code]int{
	CodeFail:                   http.StatusInternalServerError,
	CodeNoValue:                http.StatusBadRequest,
	CodeInvalidParameter:       http.StatusUnprocessableEntity,
	CodeNoSearchData:           http.StatusNotFound,
	CodeNoDBDriver:             http.StatusBadRequest,
	CodeInvalidDBDriver:        http.StatusUnprocessableEntity,
	CodeFailConnectDB:          http.StatusBadGateway,
	CodeFailExecuteQuery:       http.StatusBadRequest,
	CodeQueryTimeout:           http.StatusGatewayTimeout,
	CodePermissionDenied:       http.StatusForbidden,
	CodeFailFindSchemas:        http.StatusInternalServerError,
	CodeFailFindDatabases:      http.StatusInternalServerError,
	CodeFailFindConstraints:    http.StatusInternalServerError,
	CodeFailFindIndexes:        http.StatusInternalServerError,
	CodeFailFindSampleRows:     http.StatusInternalServerError,
	CodeStoreBusy:              http.StatusServiceUnavailable,
	CodeFailCreateAnnotation:   http.StatusInternalServerError,
	CodeFailFindAnnotation:     http.StatusInternalServerError,
	CodeFailDeleteAnnotation:   http.StatusInternalServerError,
	CodeInvalidAnnotationReq:   http.StatusUnprocessableEntity,
	CodeNoAnnotationForProfile: http.StatusNotFound,
	CodeFailSaveProfile:        http.StatusInternalServerError,
	CodeFailFindProfile:        http.StatusInternalServerError,
	CodeFailExportAnnotation:   http.StatusBadGateway,
	CodeDuplication:            http.StatusConflict,
	CodeFailDecrypt:            http.StatusInternalServerError,
	CodeFailAIConnection:       http.StatusBadGateway,
	CodeFailAIProcessing:       http.StatusBadGateway,
}

// kindCode is the fallback code for errors that carry no explicit Code.
var kindCode = map[ErrKind]Code{
	ErrKindNotFound:                 CodeNoSearchData,
	ErrKindConnectionFailed:         CodeFailConnectDB,
	ErrKindTimeout:                  CodeQueryTimeout,
	ErrKindQueryFailed:              CodeFailExecuteQuery,
	ErrKindInvalidInput:             CodeInvalidParameter,
	ErrKindPermissionDenied:         CodePermissionDenied,
	ErrKindUnsupportedDatabaseType:  CodeInvalidDBDriver,
	ErrKindIntrospectionFailed:      CodeFailFindSchemas,
	ErrKindStoreBusy:                CodeStoreBusy,
	ErrKindAnnotationCreationFailed: CodeFailCreateAnnotation,
}

// HTTPStatus returns the HTTP status registered for the code.
func (c Code) HTTPStatus() int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// CodeOf returns the stable code for err. Errors that are not *Error map to CodeFail.
func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return CodeFail
	}
	if e.Code != "" {
		return e.Code
	}
	if c, ok := kindCode[e.Kind]; ok {
		return c
	}
	return CodeFail
}

// HTTPStatus is shorthand for CodeOf(err).HTTPStatus().
func HTTPStatus(err error) int {
	return CodeOf(err).HTTPStatus()
}

// PublicMessage returns the message safe to show a client. Unexpected errors
// collapse into a generic text; the cause is only ever logged.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == ErrKindUnknown {
		return "internal failure"
	}
	return e.Message
}
