// Package statement implements the small statement language clients use to
// describe queries and writes against a category, for example:
//
//	QUERY vm-info WHERE 'agentId' = ?s AND 'startTime' > ?l SORT 'startTime' DSC LIMIT 10
//	QUERY-COUNT vm-info WHERE 'agentId' = ?s
//	QUERY-DISTINCT(vmId) vm-info
//	ADD vm-info SET 'agentId' = ?s , 'vmId' = ?s , 'startTime' = ?l
//	UPDATE vm-info SET 'stopTime' = ?l WHERE 'vmId' = ?s
//	REMOVE vm-info WHERE 'agentId' = ?s
//
// Statements are tokenized on whitespace, string literals are single-quoted
// and may not contain whitespace. The logical operators bind in the order
// NOT, AND, OR. Free parameters are written as ?s (string), ?i (int),
// ?l (long), ?b (boolean), ?d (double) and ?p (pojo); appending '[' turns
// them into list parameters. Lists and pojos are only valid in SET lists,
// SORT parameters must be strings and LIMIT parameters must be ints.
//
// Parse turns a StatementDescriptor into a Parsed statement and performs the
// semantic checks of each statement kind. Patch binds the positional
// parameters of a Parsed statement and returns a Statement, which is either a
// *Query (read) or a *Write (write). The two concrete types are the only
// implementations of Statement, so a type switch over them is exhaustive.
package statement
