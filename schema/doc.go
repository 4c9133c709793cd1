// Package schema defines the database-independent schema model: tables,
// fields, indexes and relations, plus the raw-type parser and the YAML
// and snapshot codecs.
//
// A Definition is either imported from a live data source (see the
// importer package) or unmarshaled from YAML, and drives both the record
// manager and the fixture generator:
//
//	def, err := schema.Unmarshal(data)
//	if err != nil {
//		log.Fatal(err)
//	}
//	mgr := manager.New(def, drv)
//
// Relations carry two aliases: the owning side's name for the referenced
// record, and the referenced side's name for the owning records. Empty
// aliases can be guessed from the table names with [Relation.GuessAliases].
package schema
