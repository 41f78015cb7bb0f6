package deck

import "errors"

// ErrPersistenceDisabled indicates no snapshot store is configured.
var ErrPersistenceDisabled = errors.New("persistence disabled")
