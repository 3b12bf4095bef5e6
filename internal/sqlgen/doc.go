/*
Package sqlgen turns a query chain into SQL statements.

A chain is a singly linked list of Nodes, each holding a pointer to its parent,
that ends in a table node. Generation runs in two phases over one State:

  - Collection walks the chain from the root table towards the leaf and
    registers every table taking part in the query (the root and each joined
    table) in an arena, minting the aliases t0, t1, ... in registration
    order.
  - Emission walks the chain from the leaf back to the root. Modifier nodes
    (where, order, limit, column filters) push pending state. Table nodes
    consume the pending state, let their parent emit first, and then emit
    their own statement. The result is exactly one statement per registered
    table, in registration order.

Joined tables are never joined to the root in the database. Each one is read
by an independent statement that selects the children whose key is in the set
of root keys, and rows are stitched together in memory after execution.

A State is used for a single generation pass and must not be reused.
*/
package sqlgen
