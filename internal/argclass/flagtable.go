package argclass

import "regexp"

// verb names the handler a matched flag dispatches to. The names mirror the
// handler methods on Args.
type verb int

const (
	verbInputFile verb = iota
	verbOutputFile
	verbObjectFile
	verbPreprocessOnly
	verbPrintOnly
	verbAssembleOnly
	verbVerbose
	verbCompileOnly
	verbDependencyOnly
	verbEmitLLVM
	verbLTO
	verbLinkUnary
	verbCompileUnary
	verbWarningLinkUnary
	verbDefaultBinary
	verbDependencyBinary
	verbCompileBinary
	verbLinkBinary
	verbCompileLinkUnary
	verbCompileLinkBinary
)

// flagSpec is the arity (how many following argv slots the flag consumes)
// and the verb its match dispatches to.
type flagSpec struct {
	arity int
	verb  verb
}

// flagExactMatch is the table of flags recognized by exact string match.
// Order does not matter here: map lookup is O(1) and there is never more
// than one entry per key.
var flagExactMatch = map[string]flagSpec{
	"/dev/null": {0, verbInputFile},

	"-":  {0, verbPrintOnly},
	"-o": {1, verbOutputFile},
	"-c": {0, verbCompileOnly},
	"-E": {0, verbPreprocessOnly},
	"-S": {0, verbAssembleOnly},

	"--verbose":  {0, verbVerbose},
	"--param":    {1, verbDefaultBinary},
	"-aux-info":  {1, verbDefaultBinary},

	"--version": {0, verbCompileOnly},
	"-v":        {0, verbCompileOnly},

	"-w": {0, verbCompileUnary},
	"-W": {0, verbCompileUnary},

	"-emit-llvm": {0, verbEmitLLVM},
	"-flto":      {0, verbLTO},

	"-pipe":               {0, verbCompileUnary},
	"-undef":              {0, verbCompileUnary},
	"-nostdinc":           {0, verbCompileUnary},
	"-nostdinc++":         {0, verbCompileUnary},
	"-Qunused-arguments":  {0, verbCompileUnary},
	"-no-integrated-as":   {0, verbCompileUnary},
	"-integrated-as":      {0, verbCompileUnary},
	"-no-canonical-prefixes": {0, verbCompileLinkUnary},

	"--sysroot": {1, verbCompileLinkBinary},

	"-no-cpp-precomp": {0, verbCompileUnary},

	"-pthread":     {0, verbLinkUnary},
	"-nostdlibinc": {0, verbCompileUnary},

	"-mno-omit-leaf-frame-pointer": {0, verbCompileUnary},
	"-maes":                        {0, verbCompileUnary},
	"-mno-aes":                     {0, verbCompileUnary},
	"-mavx":                        {0, verbCompileUnary},
	"-mno-avx":                     {0, verbCompileUnary},
	"-mavx2":                       {0, verbCompileUnary},
	"-mno-avx2":                    {0, verbCompileUnary},
	"-mno-red-zone":                {0, verbCompileUnary},
	"-mmmx":                        {0, verbCompileUnary},
	"-mbmi":                        {0, verbCompileUnary},
	"-mbmi2":                       {0, verbCompileUnary},
	"-mf161c":                      {0, verbCompileUnary},
	"-mfma":                        {0, verbCompileUnary},
	"-mno-mmx":                     {0, verbCompileUnary},
	"-mno-global-merge":            {0, verbCompileUnary},
	"-mno-80387":                   {0, verbCompileUnary},
	"-msse":                        {0, verbCompileUnary},
	"-mno-sse":                     {0, verbCompileUnary},
	"-msse2":                       {0, verbCompileUnary},
	"-mno-sse2":                    {0, verbCompileUnary},
	"-msse3":                       {0, verbCompileUnary},
	"-mno-sse3":                    {0, verbCompileUnary},
	"-mssse3":                      {0, verbCompileUnary},
	"-mno-ssse3":                   {0, verbCompileUnary},
	"-msse4":                       {0, verbCompileUnary},
	"-mno-sse4":                    {0, verbCompileUnary},
	"-msse4.1":                     {0, verbCompileUnary},
	"-mno-sse4.1":                  {0, verbCompileUnary},
	"-msse4.2":                     {0, verbCompileUnary},
	"-mno-sse4.2":                  {0, verbCompileUnary},
	"-msoft-float":                 {0, verbCompileUnary},
	"-m3dnow":                      {0, verbCompileUnary},
	"-mno-3dnow":                   {0, verbCompileUnary},
	"-m16":                         {0, verbCompileLinkUnary},
	"-m32":                         {0, verbCompileLinkUnary},
	"-m64":                         {0, verbCompileLinkUnary},
	"-mstackrealign":               {0, verbCompileUnary},
	"-mretpoline-external-thunk":   {0, verbCompileUnary},
	"-mno-fp-ret-in-387":           {0, verbCompileUnary},
	"-mskip-rax-setup":             {0, verbCompileUnary},
	"-mindirect-branch-register":   {0, verbCompileUnary},

	"-mllvm": {1, verbCompileBinary},

	"-A":    {1, verbCompileBinary},
	"-D":    {1, verbCompileBinary},
	"-U":    {1, verbCompileBinary},
	"-arch": {1, verbCompileBinary},

	"-P": {1, verbCompileUnary},
	"-C": {1, verbCompileUnary},

	"-M":   {0, verbDependencyOnly},
	"-MM":  {0, verbDependencyOnly},
	"-MF":  {1, verbDependencyBinary},
	"-MJ":  {1, verbDependencyBinary},
	"-MG":  {0, verbDependencyOnly},
	"-MP":  {0, verbDependencyOnly},
	"-MT":  {1, verbDependencyBinary},
	"-MQ":  {1, verbDependencyBinary},
	"-MD":  {0, verbDependencyOnly},
	"-MV":  {0, verbDependencyOnly},
	"-MMD": {0, verbDependencyOnly},

	"-I":                 {1, verbCompileBinary},
	"-idirafter":         {1, verbCompileBinary},
	"-include":           {1, verbCompileBinary},
	"-imacros":           {1, verbCompileBinary},
	"-iprefix":           {1, verbCompileBinary},
	"-iwithprefix":       {1, verbCompileBinary},
	"-iwithprefixbefore":  {1, verbCompileBinary},
	"-isystem":           {1, verbCompileBinary},
	"-isysroot":          {1, verbCompileBinary},
	"-iquote":            {1, verbCompileBinary},
	"-imultilib":         {1, verbCompileBinary},

	"-ansi":     {0, verbCompileUnary},
	"-pedantic": {0, verbCompileUnary},
	"-x":        {1, verbCompileBinary},

	"-g":                     {0, verbCompileUnary},
	"-g0":                    {0, verbCompileUnary},
	"-g1":                    {0, verbCompileUnary},
	"-g2":                    {0, verbCompileUnary},
	"-g3":                    {0, verbCompileUnary},
	"-ggdb":                  {0, verbCompileUnary},
	"-ggdb0":                 {0, verbCompileUnary},
	"-ggdb1":                 {0, verbCompileUnary},
	"-ggdb2":                 {0, verbCompileUnary},
	"-ggdb3":                 {0, verbCompileUnary},
	"-gdwarf":                {0, verbCompileUnary},
	"-gdwarf-2":              {0, verbCompileUnary},
	"-gdwarf-3":              {0, verbCompileUnary},
	"-gdwarf-4":              {0, verbCompileUnary},
	"-gline-tables-only":     {0, verbCompileUnary},
	"-grecord-gcc-switches":  {0, verbCompileUnary},
	"-ggnu-pubnames":         {0, verbCompileUnary},

	"-p":  {0, verbCompileUnary},
	"-pg": {0, verbCompileUnary},

	"-O":     {0, verbCompileUnary},
	"-O0":    {0, verbCompileUnary},
	"-O1":    {0, verbCompileUnary},
	"-O2":    {0, verbCompileUnary},
	"-O3":    {0, verbCompileUnary},
	"-Os":    {0, verbCompileUnary},
	"-Ofast": {0, verbCompileUnary},
	"-Og":    {0, verbCompileUnary},
	"-Oz":    {0, verbCompileUnary},

	"-Xclang":       {1, verbCompileBinary},
	"-Xpreprocessor": {1, verbDefaultBinary},
	"-Xassembler":   {1, verbDefaultBinary},
	"-Xlinker":      {1, verbDefaultBinary},

	"-l":           {1, verbLinkBinary},
	"-L":           {1, verbLinkBinary},
	"-T":           {1, verbLinkBinary},
	"-u":           {1, verbLinkBinary},
	"-install_name": {1, verbLinkBinary},

	"-e":     {1, verbLinkBinary},
	"-rpath": {1, verbLinkBinary},

	"-shared":        {0, verbLinkUnary},
	"-static":        {0, verbLinkUnary},
	"-static-libgcc": {0, verbLinkUnary},
	"-pie":           {0, verbLinkUnary},
	"-nostdlib":      {0, verbLinkUnary},
	"-nodefaultlibs": {0, verbLinkUnary},
	"-rdynamic":      {0, verbLinkUnary},

	"-dynamiclib":            {0, verbLinkUnary},
	"-current_version":       {1, verbLinkBinary},
	"-compatibility_version": {1, verbLinkBinary},

	"-print-multi-directory":  {0, verbCompileUnary},
	"-print-multi-lib":        {0, verbCompileUnary},
	"-print-libgcc-file-name": {0, verbCompileUnary},
	"-print-search-dirs":      {0, verbCompileUnary},

	"-fprofile-arcs": {0, verbCompileLinkUnary},
	"-coverage":      {0, verbCompileLinkUnary},
	"--coverage":     {0, verbCompileLinkUnary},
	"-fopenmp":       {0, verbCompileLinkUnary},

	"-Wl,-dead_strip": {0, verbWarningLinkUnary},
	"-dead_strip":      {0, verbWarningLinkUnary},
}

type patternSpec struct {
	re   *regexp.Regexp
	spec flagSpec
}

// flagPatterns is the ordered list consulted when a flag does not match
// flagExactMatch exactly. Order matters: the first pattern that matches
// wins, which is why the narrower dependency-file patterns (-MF, -MJ, ...)
// come before the broad -Wl,/-W ones, and the catch-all -f.+ pattern comes
// after -fsanitize=/-fuse-ld=/-flto=.
var flagPatterns = buildPatterns([]struct {
	pattern string
	spec    flagSpec
}{
	{`^-MF.*$`, flagSpec{0, verbCompileUnary}},
	{`^-MJ.*$`, flagSpec{0, verbCompileUnary}},
	{`^-MQ.*$`, flagSpec{0, verbCompileUnary}},
	{`^-MT.*$`, flagSpec{0, verbCompileUnary}},
	{`^-Wl,.+$`, flagSpec{0, verbLinkUnary}},
	{`^-W[^l].*$`, flagSpec{0, verbCompileUnary}},
	{`^-W[l][^,].*$`, flagSpec{0, verbCompileUnary}},
	{`^-(l|L).+$`, flagSpec{0, verbLinkUnary}},
	{`^-I.+$`, flagSpec{0, verbCompileUnary}},
	{`^-D.+$`, flagSpec{0, verbCompileUnary}},
	{`^-B.+$`, flagSpec{0, verbCompileLinkUnary}},
	{`^-isystem.+$`, flagSpec{0, verbCompileLinkUnary}},
	{`^-U.+$`, flagSpec{0, verbCompileUnary}},
	{`^-fsanitize=.+$`, flagSpec{0, verbCompileLinkUnary}},
	{`^-fuse-ld=.+$`, flagSpec{0, verbLinkUnary}},
	{`^-flto=.+$`, flagSpec{0, verbLTO}},
	{`^-f.+$`, flagSpec{0, verbCompileUnary}},
	{`^-rtlib=.+$`, flagSpec{0, verbLinkUnary}},
	{`^-std=.+$`, flagSpec{0, verbCompileUnary}},
	{`^-stdlib=.+$`, flagSpec{0, verbCompileLinkUnary}},
	{`^-mtune=.+$`, flagSpec{0, verbCompileUnary}},
	{`^--sysroot=.+$`, flagSpec{0, verbCompileLinkUnary}},
	{`^-print-.*$`, flagSpec{0, verbCompileUnary}},
	{`^-mmacosx-version-min=.+$`, flagSpec{0, verbCompileLinkUnary}},
	{`^-mstack-alignment=.+$`, flagSpec{0, verbCompileUnary}},
	{`^-march=.+$`, flagSpec{0, verbCompileUnary}},
	{`^-mregparm=.+$`, flagSpec{0, verbCompileUnary}},
	{`^-mcmodel=.+$`, flagSpec{0, verbCompileUnary}},
	{`^-mpreferred-stack-boundary=.+$`, flagSpec{0, verbCompileUnary}},
	{`^-mindirect-branch=.+$`, flagSpec{0, verbCompileUnary}},
	{`^--param=.+$`, flagSpec{0, verbCompileUnary}},
	{`^.+\.(c|cc|cpp|C|cxx|i|s|S|bc)$`, flagSpec{0, verbInputFile}},
	{`^.+\.([fF](|[0-9][0-9]|or|OR|pp|PP))$`, flagSpec{0, verbInputFile}},
	{`^.+\.(o|lo|So|so|po|a|dylib|pico|nossppico)$`, flagSpec{0, verbObjectFile}},
	{`^.+\.dylib(\.\d)+$`, flagSpec{0, verbObjectFile}},
	{`^.+\.(So|so)(\.\d)+$`, flagSpec{0, verbObjectFile}},
})

func buildPatterns(entries []struct {
	pattern string
	spec    flagSpec
}) []patternSpec {
	out := make([]patternSpec, len(entries))
	for i, e := range entries {
		out[i] = patternSpec{re: regexp.MustCompile(e.pattern), spec: e.spec}
	}
	return out
}

// matchPattern returns the flagSpec of the first pattern in flagPatterns
// that matches arg, in table order.
func matchPattern(arg string) (flagSpec, bool) {
	for _, p := range flagPatterns {
		if p.re.MatchString(arg) {
			return p.spec, true
		}
	}
	return flagSpec{}, false
}
