package schema

// KeyType is the declared value type of a Key.
// The empty KeyType means the key is untyped and accepts any value.
type KeyType string

const (
	KeyTypeAny    KeyType = ""
	KeyTypeString KeyType = "string"
	KeyTypeInt    KeyType = "int"
	KeyTypeLong   KeyType = "long"
	KeyTypeBool   KeyType = "boolean"
	KeyTypeDouble KeyType = "double"
	KeyTypePojo   KeyType = "pojo"
	KeyTypeList   KeyType = "list"
)

// Well known keys. Entitlement filters look for these names in a category.
var (
	KeyAgentID = Key{Name: "agentId", Type: KeyTypeString}
	KeyVmID    = Key{Name: "vmId", Type: KeyTypeString}
)

// Key is a named, typed attribute identifier.
type Key struct {
	Name string  `json:"name" yaml:"name"`
	Type KeyType `json:"type,omitempty" yaml:"type,omitempty"`
}

// NewKey creates a new key with the given name and type
func NewKey(name string, keyType KeyType) Key {
	return Key{Name: name, Type: keyType}
}

// Equal reports whether both keys have the same name. The type is ignored.
func (k Key) Equal(other Key) bool {
	return k.Name == other.Name
}

func (k Key) String() string {
	return k.Name
}

// Valid reports whether the key type is one of the known types
func (t KeyType) Valid() bool {
	switch t {
	case KeyTypeAny, KeyTypeString, KeyTypeInt, KeyTypeLong, KeyTypeBool, KeyTypeDouble, KeyTypePojo, KeyTypeList:
		return true
	default:
		return false
	}
}
