package idgen

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// OrderCodePrefix — префикс человекочитаемого кода заказа.
const OrderCodePrefix = "SO-"

// Generator выдаёт идентификаторы сущностей и уникальные коды заказов.
type Generator struct {
	node *snowflake.Node
}

// New создаёт генератор для узла nodeID (0..1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, errors.Wrapf(err, "create snowflake node %d", nodeID)
	}
	return &Generator{node: node}, nil
}

// NewID возвращает случайный UUID для внутренних идентификаторов.
func (g *Generator) NewID() string {
	return uuid.NewString()
}

// OrderCode возвращает короткий монотонный код вида SO-1A2B3C4D5E.
func (g *Generator) OrderCode() string {
	return OrderCodePrefix + strings.ToUpper(g.node.Generate().Base36())
}
