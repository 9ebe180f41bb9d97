// Package trust holds the allow-lists of category names and statement texts
// the server accepts. Clients can only register categories and prepare
// statements that appear on these lists.
//
// The lists are read from a YAML file:
//
//	categories:
//	  - vm-info
//	  - host-info
//	statements:
//	  - QUERY vm-info WHERE 'agentId' = ?s
//	  - ADD vm-info SET 'agentId' = ?s , 'vmId' = ?s
//
// Statement texts are compared after trimming surrounding whitespace, the
// rest of the text has to match exactly.
package trust
