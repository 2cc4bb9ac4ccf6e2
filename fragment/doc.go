// Package fragment adds reusable, named template fragments to the compiler
// in package lang.
//
// A fragment is declared once and rendered anywhere after its declaration,
// on the server and in the browser:
//
//	runtime
//	fragment card(title, ...tags)
//	  .card
//	    h2= title
//	    each t in tags
//	      span.tag= t
//	render card("Hello", "a", "b")
//
// The runtime line embeds the client runtime, which also exports the client
// function of every fragment of the file as window["templates"]["card"].
// A name with a dot selects another namespace: "ui.card" is exported as
// window["ui"]["card"].
//
// Fragments are recognized by compiles started through a [Compiler] and by
// any compile carrying its [Plugin] (see [Middleware]). The outermost
// compile starts a run, tracked by a [CompileContext]; compiles nested
// inside it, such as those of fragment bodies, share the run and its
// [Registry]. The run ends
// with the outermost compile, successful or not, and its state is
// discarded.
package fragment
