// Package discovery finds the custom data types a server exposes and
// registers a schema for each into the data type factory of its namespace.
//
// Every type dictionary below the OPC Binary type system is extracted by its
// own pipeline. Dictionaries that still carry a schema document are handed to
// a SchemaParser; deprecated or empty ones are rebuilt from the
// DataTypeDefinition attribute of their data types, resolving field types
// recursively and registering unseen dependencies on demand.
package discovery
