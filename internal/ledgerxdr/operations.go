package ledgerxdr

// OperationType discriminant of an operation body.
type OperationType int32

const (
	OperationTypeManageBalance            OperationType = 9
	OperationTypePayment                  OperationType = 23
	OperationTypeCreateKYCRecoveryRequest OperationType = 46
)

func (t OperationType) String() string {
	switch t {
	case OperationTypeManageBalance:
		return "manage_balance"
	case OperationTypePayment:
		return "payment"
	case OperationTypeCreateKYCRecoveryRequest:
		return "create_kyc_recovery_request"
	default:
		return "unknown"
	}
}

// Operation one instruction of a transaction. Implemented by
// PaymentOp, ManageBalanceOp and CreateKYCRecoveryRequestOp only.
type Operation interface {
	Type() OperationType
	encode(w *writer)
}

// Fee fixed-point fee amounts.
type Fee struct {
	Fixed   uint64
	Percent uint64
}

func (f Fee) encode(w *writer) {
	w.uint64(f.Fixed)
	w.uint64(f.Percent)
	w.emptyExt()
}

type PaymentFeeData struct {
	SourceFee         Fee
	DestinationFee    Fee
	SourcePaysForDest bool
}

type PaymentDestinationType int32

const (
	PaymentDestinationAccount PaymentDestinationType = 0
	PaymentDestinationBalance PaymentDestinationType = 1
)

type PaymentDestination struct {
	Type      PaymentDestinationType
	AccountID Key
	BalanceID Key
}

// PaymentOp moves Amount from the source balance to the destination.
type PaymentOp struct {
	SourceBalanceID Key
	Destination     PaymentDestination
	Amount          uint64
	FeeData         PaymentFeeData
	Subject         string
	Reference       string
}

func (PaymentOp) Type() OperationType { return OperationTypePayment }

func (op PaymentOp) encode(w *writer) {
	writePublicKey(w, op.SourceBalanceID)
	w.int32(int32(op.Destination.Type))
	switch op.Destination.Type {
	case PaymentDestinationAccount:
		writePublicKey(w, op.Destination.AccountID)
	case PaymentDestinationBalance:
		writePublicKey(w, op.Destination.BalanceID)
	default:
		w.fail(errUnknownDestination)
		return
	}
	w.uint64(op.Amount)
	op.FeeData.SourceFee.encode(w)
	op.FeeData.DestinationFee.encode(w)
	w.bool(op.FeeData.SourcePaysForDest)
	w.emptyExt()
	w.string(op.Subject)
	w.string(op.Reference)
	w.emptyExt()
}

type ManageBalanceAction int32

const (
	ManageBalanceCreate       ManageBalanceAction = 0
	ManageBalanceDelete       ManageBalanceAction = 1
	ManageBalanceCreateUnique ManageBalanceAction = 2
)

// ManageBalanceOp creates or deletes a balance of Asset for Destination.
type ManageBalanceOp struct {
	Action      ManageBalanceAction
	Destination Key
	Asset       string
}

func (ManageBalanceOp) Type() OperationType { return OperationTypeManageBalance }

func (op ManageBalanceOp) encode(w *writer) {
	w.int32(int32(op.Action))
	writePublicKey(w, op.Destination)
	w.string(op.Asset)
	w.emptyExt()
}

// SignerData signer to install on the recovered account.
type SignerData struct {
	PublicKey Key
	RoleID    uint64
	Weight    uint32
	Identity  uint32
	Details   string
}

// CreateKYCRecoveryRequestOp asks the admins to replace the signers of TargetAccount.
type CreateKYCRecoveryRequestOp struct {
	TargetAccount  Key
	Signers        []SignerData
	CreatorDetails string
	AllTasks       *uint32
}

func (CreateKYCRecoveryRequestOp) Type() OperationType {
	return OperationTypeCreateKYCRecoveryRequest
}

func (op CreateKYCRecoveryRequestOp) encode(w *writer) {
	writePublicKey(w, op.TargetAccount)
	w.length(len(op.Signers))
	for _, s := range op.Signers {
		writePublicKey(w, s.PublicKey)
		w.uint64(s.RoleID)
		w.uint32(s.Weight)
		w.uint32(s.Identity)
		w.string(s.Details)
		w.emptyExt()
	}
	w.string(op.CreatorDetails)
	w.bool(op.AllTasks != nil)
	if op.AllTasks != nil {
		w.uint32(*op.AllTasks)
	}
	w.emptyExt()
}
