package stats

import (
	"fmt"
	"strings"
)

// Methods requested from the correlation procedure.
var Methods = []string{"pearson", "spearman", "kendall", "hoeffding"}

// Program renders the correlation job: import the staged CSV, run PROC CORR
// over vars with OUTS= and export the statistics table as CSV.
func Program(dataPath, outPath, dataset string, vars []string) string {
	var b strings.Builder
	b.WriteString("options linesize=80;\n")
	fmt.Fprintf(&b, "proc import datafile=%s out=work.%s dbms=csv replace;\n", quote(dataPath), dataset)
	b.WriteString("  getnames=yes;\nrun;\n")
	fmt.Fprintf(&b, "proc corr data=work.%s OUTS=work.out_%s %s;\n", dataset, dataset, strings.Join(Methods, " "))
	fmt.Fprintf(&b, "  var %s;\nrun;\n", strings.Join(vars, " "))
	fmt.Fprintf(&b, "proc export data=work.out_%s outfile=%s dbms=csv replace;\nrun;\n", dataset, quote(outPath))
	return b.String()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
