package engine

import "fmt"

// ValidateDefinition structurally checks a workflow definition before it is
// stored or pushed to the engine. Returns the first failure found.
func ValidateDefinition(definition map[string]interface{}) error {
	if definition == nil {
		return fmt.Errorf("workflow definition must be an object")
	}

	name, ok := definition["name"]
	if !ok {
		return fmt.Errorf("missing required field: 'name'")
	}
	if _, ok := name.(string); !ok {
		return fmt.Errorf("field 'name' must be a string")
	}

	rawNodes, ok := definition["nodes"]
	if !ok {
		return fmt.Errorf("missing required field: 'nodes'")
	}
	nodes, ok := rawNodes.([]interface{})
	if !ok {
		return fmt.Errorf("field 'nodes' must be a list")
	}
	if len(nodes) == 0 {
		return fmt.Errorf("workflow must have at least one node")
	}

	for i, raw := range nodes {
		node, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("node at index %d must be an object", i)
		}
		if _, ok := node["id"].(string); !ok {
			return fmt.Errorf("node at index %d is missing required field 'id'", i)
		}
		if _, ok := node["type"].(string); !ok {
			return fmt.Errorf("node at index %d is missing required field 'type'", i)
		}
	}

	if connections, ok := definition["connections"]; ok && connections != nil {
		if _, ok := connections.(map[string]interface{}); !ok {
			return fmt.Errorf("field 'connections' must be an object if provided")
		}
	}

	return nil
}
