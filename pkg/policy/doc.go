// Package policy evaluates Open Policy Agent (OPA) Rego policies over
// assembled configurations.
//
// A policy is a Rego module whose package defines a deny set. The engine
// evaluates data.<package>.deny once per component of an assembly, with the
// following input document:
//
//	{
//	  "component": {
//	    "id":         "api",
//	    "create_ref": "http/server",   // absent for components without one
//	    "config":     {...},           // reserved keys removed
//	    "refs":       {"db": "db"},
//	    "opaque":     false,           // true for values the runtime passes through
//	    "dependents": ["gateway"]      // components referencing this one
//	  },
//	  "assembly": {
//	    "components": {...},
//	    "order":      ["db", "api", "gateway"]
//	  }
//	}
//
// Each deny element is either a message string or an object with a message
// and optional severity and component fields. Violations of severity error
// or critical make the result disallowed; info and warning violations are
// reported as warnings.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//
//	result, err := eng.Evaluate(ctx, asm)
//	if err != nil {
//	    return err
//	}
//	for _, v := range result.Violations {
//	    fmt.Printf("%s: %s (%s)\n", v.Component, v.Message, v.Policy)
//	}
//
// # Built-in Policies
//
//  1. component-naming - IDs use lowercase letters, digits, dots, underscores and hyphens (warning)
//  2. plaintext-secrets - secret-like keys must not hold literal values (error)
//  3. create-ref-namespace - constructors limited to data.settings.allowed_namespaces (error)
//  4. unused-value - opaque values nothing references (info)
//
// Documents published with Engine.SetData are visible to every policy under
// data.<key>.
//
// # Policy Files
//
// Rego files are named after their file name. A leading comment block
// becomes the description and may carry annotations:
//
//	# Replica counts must be positive.
//	# severity: error
//	# tags: capacity
//	package custom.replicas
//
//	import rego.v1
//
//	deny contains msg if {
//	    input.component.config.replicas < 1
//	    msg := "replicas must be positive"
//	}
//
// JSON policy definitions and bundles carry the same fields as Policy and
// PolicyBundle. Loader.Watch reloads a policy set when files change; pass
// Engine.ReplacePolicies as the reload function to swap it in atomically.
package policy
