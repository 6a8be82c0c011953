package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		componentNamingPolicy(),
		plaintextSecretsPolicy(),
		createRefNamespacePolicy(),
		unusedValuePolicy(),
	}
}

// componentNamingPolicy keeps component IDs usable as file names and
// command-line arguments.
func componentNamingPolicy() Policy {
	return Policy{
		Name:        "component-naming",
		Description: "Component IDs use lowercase letters, digits, dots, underscores and hyphens",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package assembler.policies.naming

import rego.v1

deny contains violation if {
	id := input.component.id
	not regex.match("^[a-z0-9][a-z0-9._-]*$", id)
	violation := {
		"message": sprintf("component ID '%s' should contain only lowercase letters, digits, dots, underscores and hyphens", [id]),
		"severity": "warning",
	}
}

deny contains violation if {
	id := input.component.id
	count(id) > 63
	violation := {
		"message": sprintf("component ID '%s' should not exceed 63 characters", [id]),
		"severity": "warning",
	}
}`,
	}
}

// plaintextSecretsPolicy rejects secrets written as literals into a
// component spec. Values of the form ${...} are treated as placeholders.
func plaintextSecretsPolicy() Policy {
	return Policy{
		Name:        "plaintext-secrets",
		Description: "Secret-like keys must not hold literal values",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"security", "secrets"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package assembler.policies.secrets

import rego.v1

secret_keys := {"password", "secret", "token", "api_key", "private_key"}

deny contains violation if {
	not input.component.opaque
	some path, value
	walk(input.component.config, [path, value])
	count(path) > 0
	key := path[count(path) - 1]
	is_string(key)
	lower(key) in secret_keys
	is_string(value)
	value != ""
	not startswith(value, "${")
	violation := {
		"message": sprintf("component %s holds a literal value in '%s'", [input.component.id, concat(".", [sprintf("%v", [p]) | some p in path])]),
		"severity": "error",
	}
}`,
	}
}

// createRefNamespacePolicy restricts constructors to namespaces listed in
// data.settings.allowed_namespaces, when that list is set.
func createRefNamespacePolicy() Policy {
	return Policy{
		Name:        "create-ref-namespace",
		Description: "create-ref namespaces must be listed in data.settings.allowed_namespaces when it is set",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"constructors"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package assembler.policies.namespaces

import rego.v1

deny contains violation if {
	allowed := data.settings.allowed_namespaces
	ref := input.component.create_ref
	namespace := split(ref, "/")[0]
	not namespace in allowed
	violation := {
		"message": sprintf("component %s uses create-ref %s outside the allowed namespaces", [input.component.id, ref]),
		"severity": "error",
	}
}`,
	}
}

// unusedValuePolicy reports opaque values no component references.
func unusedValuePolicy() Policy {
	return Policy{
		Name:        "unused-value",
		Description: "Opaque values should be referenced by at least one component",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"hygiene"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package assembler.policies.unused

import rego.v1

deny contains violation if {
	input.component.opaque
	count(input.component.dependents) == 0
	violation := {
		"message": sprintf("value %s is not referenced by any component", [input.component.id]),
		"severity": "info",
	}
}`,
	}
}
