// pkg/errors/storage.go
package errors

// Storage error codes
const (
	// StorageErrConnection indicates a connection error
	StorageErrConnection = "STORAGE_CONNECTION"
	// StorageErrRead indicates a read error
	StorageErrRead = "STORAGE_READ"
	// StorageErrWrite indicates a write error
	StorageErrWrite = "STORAGE_WRITE"
	// StorageErrNotFound indicates a resource was not found
	StorageErrNotFound = "STORAGE_NOT_FOUND"
	// StorageErrSerialization indicates a serialization error
	StorageErrSerialization = "STORAGE_SERIALIZATION"
)

// Storage domain name
const StorageDomain = "storage"

// Storage operations on the receipt store
const (
	OpConnect     = "Connect"
	OpReserveHash = "ReserveHash"
	OpReleaseHash = "ReleaseHash"
	OpSaveReceipt = "SaveReceipt"
	OpLoadReceipt = "LoadReceipt"
	OpSerialize   = "Serialize"
	OpDeserialize = "Deserialize"
)

// NewStorageError creates a new storage error
func NewStorageError(code string, message string, err error) error {
	kind := KindStorage
	if code == StorageErrNotFound {
		kind = KindNotFound
	}
	return &Error{
		Kind:     kind,
		Domain:   StorageDomain,
		Code:     code,
		Message:  message,
		Original: err,
	}
}

// StorageWrap wraps an error with storage domain
func StorageWrap(err error, operation string, code string, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Kind:      KindStorage,
		Domain:    StorageDomain,
		Operation: operation,
		Code:      code,
		Message:   message,
		Original:  err,
	}
}

// IsStorageError reports whether err carries the given storage code
func IsStorageError(err error, code string) bool {
	var domainErr *Error
	if As(err, &domainErr) {
		return domainErr.Domain == StorageDomain && domainErr.Code == code
	}
	return false
}
