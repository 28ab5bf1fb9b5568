package dispatch

// Operation names understood by HandleCall.
const (
	OpConfigure   = "OP_CONFIGURE"
	OpRemoveActor = "OP_REMOVE_ACTOR"

	OpAdd             = "Add"
	OpGet             = "Get"
	OpSet             = "Set"
	OpDel             = "Del"
	OpPush            = "Push"
	OpListDel         = "ListItemDelete"
	OpRange           = "Range"
	OpClear           = "Clear"
	OpSetAdd          = "SetAdd"
	OpSetRemove       = "SetRemove"
	OpSetUnion        = "SetUnion"
	OpSetIntersection = "SetIntersection"
	OpSetQuery        = "SetQuery"
	OpKeyExists       = "KeyExists"
)

// CapabilityConfiguration binds an actor (Module) to this provider.
type CapabilityConfiguration struct {
	Module string            `json:"module"`
	Values map[string]string `json:"values,omitempty"`
}

type AddRequest struct {
	Key   string `json:"key"`
	Value int64  `json:"value"`
}

type AddResponse struct {
	Value int64 `json:"value"`
}

type GetRequest struct {
	Key string `json:"key"`
}

type GetResponse struct {
	Value  string `json:"value"`
	Exists bool   `json:"exists"`
}

type SetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SetResponse struct {
	Value string `json:"value"`
}

// KeyRequest names a single key for Del, Clear, SetQuery and KeyExists.
type KeyRequest struct {
	Key string `json:"key"`
}

type KeyResponse struct {
	Key string `json:"key"`
}

// ItemRequest carries a key and one item for list and set mutations.
type ItemRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CountResponse struct {
	NewCount int `json:"new_count"`
}

type RangeRequest struct {
	Key   string `json:"key"`
	Start int    `json:"start"`
	Stop  int    `json:"stop"`
}

type KeysRequest struct {
	Keys []string `json:"keys"`
}

type ValuesResponse struct {
	Values []string `json:"values"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}
