package constant

import "time"

const (
	OrderResolveLock    = "order:resolve_lock:%s"
	OrderForceCloseFlag = "order:force_close:%s"
	IngestSessionKey    = "ingest:session:%s"
	UnusedCardGaugeKey  = "cards:unused_gauge"
)

const (
	OrderResolveLockDefaultTTL = 30 * time.Second
	ForceCloseConfirmTTL       = 10 * time.Second
	IngestSessionTTL           = 60 * time.Second
)
