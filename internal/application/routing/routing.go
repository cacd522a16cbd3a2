package routing

import (
	"communities/internal/application/entity"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// ErrUnroutableEvent — для типа события нет правила маршрутизации.
var ErrUnroutableEvent = errors.New("no routing rule for event type")

// Route — назначение в брокере: topic exchange + routing key.
type Route struct {
	Exchange   string
	RoutingKey string
}

// Rule — одна строка файла маршрутизации.
type Rule struct {
	EventType  string `mapstructure:"event_type"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

// Table иммутабельна после загрузки, поэтому безопасна для конкурентного
// чтения без синхронизации.
type Table struct {
	routes map[entity.OutboxEventType]Route
}

// Load читает файл маршрутизации и валидирует его: дубликаты типов событий
// и пустые exchange/routing_key отвергаются. Каждый тип из produced обязан
// резолвиться — отсутствие правила это фатальная ошибка конфигурации,
// обнаруживаем её на старте, а не в рантайме.
func Load(path string, produced []entity.OutboxEventType) (*Table, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read routing file %q: %w", path, err)
	}

	var file struct {
		Routes []Rule `mapstructure:"routes"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("unmarshal routing file %q: %w", path, err)
	}
	if len(file.Routes) == 0 {
		return nil, fmt.Errorf("routing file %q has no routes", path)
	}

	routes := make(map[entity.OutboxEventType]Route, len(file.Routes))
	for _, r := range file.Routes {
		if r.EventType == "" {
			return nil, fmt.Errorf("routing file %q: rule with empty event_type", path)
		}
		if r.Exchange == "" || r.RoutingKey == "" {
			return nil, fmt.Errorf("routing file %q: rule %q has empty exchange or routing_key", path, r.EventType)
		}
		et := entity.OutboxEventType(r.EventType)
		if _, ok := routes[et]; ok {
			return nil, fmt.Errorf("routing file %q: duplicate rule for %q", path, r.EventType)
		}
		routes[et] = Route{Exchange: r.Exchange, RoutingKey: r.RoutingKey}
	}

	t := &Table{routes: routes}

	for _, et := range produced {
		if _, err := t.Resolve(et); err != nil {
			return nil, fmt.Errorf("routing file %q does not cover produced event type %q: %w", path, et, err)
		}
	}

	return t, nil
}

func (t *Table) Resolve(eventType entity.OutboxEventType) (Route, error) {
	r, ok := t.routes[eventType]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnroutableEvent, eventType)
	}
	return r, nil
}

// Exchanges возвращает отсортированный список уникальных exchange —
// топологию, которую publisher декларирует при каждом коннекте.
func (t *Table) Exchanges() []string {
	seen := make(map[string]struct{}, len(t.routes))
	var out []string
	for _, r := range t.routes {
		if _, ok := seen[r.Exchange]; ok {
			continue
		}
		seen[r.Exchange] = struct{}{}
		out = append(out, r.Exchange)
	}
	sort.Strings(out)
	return out
}
