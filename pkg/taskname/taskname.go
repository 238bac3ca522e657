package taskname

const (
	// Payment tasks
	PaymentReconcile = "payment:reconcile"
	PaymentSweep     = "payment:sweep"
)
