package domain

// ActorKind — тип инициатора действия.
type ActorKind string

const (
	ActorCustomer ActorKind = "customer"
	ActorEmployee ActorKind = "employee"
	ActorSystem   ActorKind = "system"
)

// Actor — уже авторизованный внешним слоем инициатор операции.
type Actor struct {
	ID   string
	Kind ActorKind
	Role string
}

// SystemActor используется для автоматических переходов.
var SystemActor = Actor{ID: "system", Kind: ActorSystem}
